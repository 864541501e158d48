// Package session holds the per-editor state machine around the image
// pipeline: select, interactive crop confirmation, delivery and removal.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flockdir/photoflow/internal/domain"
	"github.com/flockdir/photoflow/internal/pipeline"
	"github.com/sirupsen/logrus"
)

type State string

const (
	StateIdle      State = "idle"
	StateSelected  State = "selected"
	StateValidated State = "validated"
	StateDecoded   State = "decoded"
	StateCropping  State = "cropping"
	StateCropped   State = "cropped"
	StateEncoded   State = "encoded"
	StateDelivered State = "delivered"
	StateRejected  State = "rejected"
)

var (
	ErrSuperseded        = errors.New("run superseded by a newer selection")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrClosed            = errors.New("session is closed")
)

// Normalizer is the part of pipeline.Processor a session drives.
type Normalizer interface {
	Intake(ctx context.Context, in domain.RawImageInput) (*pipeline.Decoded, error)
	Finish(ctx context.Context, d *pipeline.Decoded) (domain.OutputImage, error)
}

type PreviewStore interface {
	Issue(data []byte) (string, error)
	Release(handle string) bool
}

type Snapshot struct {
	ID            string             `json:"id"`
	State         State              `json:"state"`
	Reason        string             `json:"reason,omitempty"`
	Message       string             `json:"message,omitempty"`
	Region        *domain.CropRegion `json:"crop_region,omitempty"`
	SourceWidth   int                `json:"source_width,omitempty"`
	SourceHeight  int                `json:"source_height,omitempty"`
	PreviewHandle string             `json:"preview_handle,omitempty"`
	Reference     string             `json:"reference,omitempty"`
	Generation    uint64             `json:"generation"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// Session owns at most one decoded bitmap and one delivered preview at a time.
// Every Select starts a new generation; work finishing under an older
// generation is discarded and its resources released.
type Session struct {
	id        string
	processor Normalizer
	previews  PreviewStore
	logger    logrus.FieldLogger
	now       func() time.Time

	mu         sync.Mutex
	state      State
	lastErr    error
	generation uint64
	decoded    *pipeline.Decoded
	delivered  *domain.OutputImage
	reference  string
	closed     bool
	updatedAt  time.Time
}

func newSession(id, reference string, processor Normalizer, previews PreviewStore, logger logrus.FieldLogger, now func() time.Time) *Session {
	if !domain.IsRemoteReference(reference) {
		reference = domain.PlaceholderURL
	}
	return &Session{
		id:        id,
		processor: processor,
		previews:  previews,
		logger:    logger.WithField("session_id", id),
		now:       now,
		state:     StateIdle,
		reference: reference,
		updatedAt: now().UTC(),
	}
}

func (s *Session) ID() string {
	return s.id
}

// Select starts a new run for in. It returns once the image is decoded and
// waiting for confirmation, or with the error that rejected it. A file with
// an unaccepted type or size leaves the session exactly as it was.
func (s *Session) Select(ctx context.Context, in domain.RawImageInput) (Snapshot, error) {
	if err := pipeline.Validate(in); err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return Snapshot{}, ErrClosed
		}
		s.logger.Warnf("selection ignored reason=%s err=%v", domain.RejectReason(err), err)
		return s.snapshotLocked(), err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	s.generation++
	gen := s.generation
	s.dropDecodedLocked()
	s.transitionLocked(StateSelected, nil)
	s.transitionLocked(StateValidated, nil)
	s.mu.Unlock()

	decoded, err := s.processor.Intake(ctx, in)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		decoded.Close()
		s.logger.Infof("discarded superseded decode generation=%d current=%d", gen, s.generation)
		return Snapshot{}, ErrSuperseded
	}
	if err != nil {
		s.transitionLocked(StateRejected, err)
		s.logger.Warnf("selection rejected generation=%d reason=%s err=%v", gen, domain.RejectReason(err), err)
		return s.snapshotLocked(), err
	}

	s.decoded = decoded
	s.transitionLocked(StateDecoded, nil)
	s.transitionLocked(StateCropping, nil)
	return s.snapshotLocked(), nil
}

// Confirm crops, resamples and encodes the image awaiting confirmation and
// delivers it as the new preview. Once encoding starts it is not cancelled.
func (s *Session) Confirm(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	if s.state != StateCropping || s.decoded == nil {
		state := s.state
		s.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: confirm from %s", ErrInvalidTransition, state)
	}
	gen := s.generation
	decoded := s.decoded
	s.decoded = nil
	s.transitionLocked(StateCropped, nil)
	s.mu.Unlock()

	out, err := s.processor.Finish(context.WithoutCancel(ctx), decoded)
	decoded.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		s.logger.Infof("discarded superseded encode generation=%d current=%d", gen, s.generation)
		return Snapshot{}, ErrSuperseded
	}
	if err != nil {
		s.transitionLocked(StateRejected, err)
		s.logger.Warnf("encode failed generation=%d err=%v", gen, err)
		return s.snapshotLocked(), err
	}
	s.transitionLocked(StateEncoded, nil)

	handle, err := s.previews.Issue(out.Data)
	if err != nil {
		err = fmt.Errorf("%w: issue preview: %v", domain.ErrEncode, err)
		s.transitionLocked(StateRejected, err)
		return s.snapshotLocked(), err
	}
	out.Handle = handle

	if s.delivered != nil {
		s.previews.Release(s.delivered.Handle)
	}
	s.delivered = &out
	s.transitionLocked(StateDelivered, nil)
	s.logger.Infof("delivered preview generation=%d bytes=%d", gen, len(out.Data))
	return s.snapshotLocked(), nil
}

// Cancel abandons the current run while it is decoding or awaiting
// confirmation. The delivered preview, if any, is kept.
func (s *Session) Cancel() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}
	switch s.state {
	case StateSelected, StateValidated, StateDecoded, StateCropping:
	default:
		return Snapshot{}, fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, s.state)
	}

	s.generation++
	s.dropDecodedLocked()
	s.transitionLocked(StateIdle, nil)
	return s.snapshotLocked(), nil
}

// Remove clears any delivered preview and falls back to the placeholder.
func (s *Session) Remove() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}

	s.generation++
	s.dropDecodedLocked()
	s.releaseDeliveredLocked()
	s.reference = domain.PlaceholderURL
	s.transitionLocked(StateIdle, nil)
	return s.snapshotLocked(), nil
}

// Close releases everything the session holds. It is safe to call twice.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.generation++
	s.dropDecodedLocked()
	s.releaseDeliveredLocked()
}

// Delivered returns the current output. ok is false when the session shows a
// remote reference or the placeholder instead.
func (s *Session) Delivered() (domain.OutputImage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delivered == nil {
		return domain.OutputImage{}, false
	}
	return *s.delivered, true
}

// Reference is the remote URL or placeholder shown when nothing is delivered.
func (s *Session) Reference() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reference
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) lastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

func (s *Session) transitionLocked(next State, err error) {
	s.state = next
	s.lastErr = err
	s.updatedAt = s.now().UTC()
}

func (s *Session) dropDecodedLocked() {
	if s.decoded != nil {
		s.decoded.Close()
		s.decoded = nil
	}
}

func (s *Session) releaseDeliveredLocked() {
	if s.delivered != nil {
		s.previews.Release(s.delivered.Handle)
		s.delivered = nil
	}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:         s.id,
		State:      s.state,
		Reference:  s.reference,
		Generation: s.generation,
		UpdatedAt:  s.updatedAt,
	}
	if s.lastErr != nil {
		snap.Reason = domain.RejectReason(s.lastErr)
		snap.Message = domain.UserMessage(s.lastErr)
	}
	if s.decoded != nil && s.decoded.Bitmap != nil {
		region := s.decoded.Region
		snap.Region = &region
		snap.SourceWidth = s.decoded.Bitmap.Width()
		snap.SourceHeight = s.decoded.Bitmap.Height()
	}
	if s.delivered != nil {
		snap.PreviewHandle = s.delivered.Handle
		snap.Reference = ""
	}
	return snap
}
