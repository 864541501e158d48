// Package preview holds encoded images behind transient handles. A handle
// stays valid until its owner releases it.
package preview

import (
	"errors"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

var ErrRegistryFull = errors.New("preview registry is full")

type entry struct {
	data      []byte
	issuedAt  time.Time
	sizeBytes int
}

type Registry struct {
	mu         sync.RWMutex
	entries    map[string]entry
	maxEntries int
	totalBytes int
	newHandle  func() string
	now        func() time.Time
}

// NewRegistry returns a registry holding at most maxEntries previews.
// maxEntries <= 0 means unbounded.
func NewRegistry(maxEntries int) *Registry {
	return &Registry{
		entries:    make(map[string]entry),
		maxEntries: maxEntries,
		newHandle:  shortuuid.New,
		now:        time.Now,
	}
}

// Issue stores a copy of data and returns its handle.
func (r *Registry) Issue(data []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxEntries > 0 && len(r.entries) >= r.maxEntries {
		return "", ErrRegistryFull
	}

	handle := r.newHandle()
	for _, exists := r.entries[handle]; exists; _, exists = r.entries[handle] {
		handle = r.newHandle()
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	r.entries[handle] = entry{data: buf, issuedAt: r.now().UTC(), sizeBytes: len(buf)}
	r.totalBytes += len(buf)
	return handle, nil
}

func (r *Registry) Get(handle string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[handle]
	if !ok {
		return nil, false
	}
	return e.data, true
}

// Release frees the preview behind handle. Releasing an unknown or empty
// handle is a no-op and reports false.
func (r *Registry) Release(handle string) bool {
	if handle == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[handle]
	if !ok {
		return false
	}
	delete(r.entries, handle)
	r.totalBytes -= e.sizeBytes
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) Bytes() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totalBytes
}

// OldestAge reports how long the oldest unreleased preview has been held.
func (r *Registry) OldestAge() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var oldest time.Time
	for _, e := range r.entries {
		if oldest.IsZero() || e.issuedAt.Before(oldest) {
			oldest = e.issuedAt
		}
	}
	if oldest.IsZero() {
		return 0
	}
	return r.now().UTC().Sub(oldest)
}
