package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/flockdir/photoflow/internal/id"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotFound    = errors.New("session not found")
	ErrTooManyOpen = errors.New("too many open sessions")
)

type Config struct {
	MaxSessions int
	IdleTTL     time.Duration
}

type Manager struct {
	processor Normalizer
	previews  PreviewStore
	logger    logrus.FieldLogger
	cfg       Config
	newID     func() string
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(processor Normalizer, previews PreviewStore, logger logrus.FieldLogger, cfg Config) *Manager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	return &Manager{
		processor: processor,
		previews:  previews,
		logger:    logger,
		cfg:       cfg,
		newID:     id.New,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// Create opens a session. reference is the listing's current photo URL and
// may be empty.
func (m *Manager) Create(reference string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		return nil, ErrTooManyOpen
	}

	s := newSession(m.newID(), reference, m.processor, m.previews, m.logger, m.now)
	m.sessions[s.ID()] = s
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	s.Close()
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than the configured TTL and returns
// how many were closed.
func (m *Manager) Sweep() int {
	cutoff := m.now().UTC().Add(-m.cfg.IdleTTL)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.lastActivity().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	return len(expired)
}

// Run sweeps idle sessions every interval until ctx is done, then closes all
// remaining sessions.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Infof("closed idle sessions count=%d", n)
			}
		}
	}
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
