package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flockdir/photoflow/internal/domain"
	"github.com/flockdir/photoflow/internal/id"
	"github.com/flockdir/photoflow/internal/queue"
	"github.com/flockdir/photoflow/internal/ratelimit"
	"github.com/flockdir/photoflow/internal/session"
	"github.com/flockdir/photoflow/internal/store"
	"github.com/flockdir/photoflow/internal/telemetry"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// multipartOverhead is the room left for multipart framing on top of the
// largest accepted image.
const multipartOverhead = 1 << 20

type Server struct {
	logger      logrus.FieldLogger
	sessions    *session.Manager
	previews    previewReader
	queueClient queueEnqueuer
	uploads     store.UploadStore
	rateLimiter RateLimiter
	subjects    ratelimit.Subjects
	metrics     *metrics
	tracer      trace.Tracer
	mux         *http.ServeMux
}

type queueEnqueuer interface {
	EnqueuePublishPhoto(ctx context.Context, payload queue.PublishPhotoPayload) (*asynq.TaskInfo, error)
}

type previewReader interface {
	Get(handle string) ([]byte, bool)
	Len() int
	Bytes() int
	OldestAge() time.Duration
}

func NewServer(
	logger logrus.FieldLogger,
	sessions *session.Manager,
	previews previewReader,
	queueClient queueEnqueuer,
	uploads store.UploadStore,
	rateLimiter RateLimiter,
) *Server {
	s := &Server{
		logger:      logger,
		sessions:    sessions,
		previews:    previews,
		queueClient: queueClient,
		uploads:     uploads,
		rateLimiter: rateLimiter,
		metrics:     newMetrics(sessions.Len, previews),
		tracer:      telemetry.Tracer("api"),
		mux:         http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.withTracing(s.metrics.withHTTPMetrics(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())

	s.mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleCloseSession)
	s.mux.HandleFunc("POST /v1/sessions/{id}/image", s.handleSelectImage)
	s.mux.HandleFunc("DELETE /v1/sessions/{id}/image", s.handleRemoveImage)
	s.mux.HandleFunc("POST /v1/sessions/{id}/confirm", s.handleConfirm)
	s.mux.HandleFunc("POST /v1/sessions/{id}/cancel", s.handleCancel)
	s.mux.HandleFunc("POST /v1/sessions/{id}/publish", s.handlePublish)

	s.mux.HandleFunc("GET /v1/previews/{handle}", s.handleGetPreview)
	s.mux.HandleFunc("GET /v1/uploads/{id}", s.handleGetUpload)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createSessionRequest struct {
	CurrentURL string `json:"current_url,omitempty"`
}

type sessionResponse struct {
	session.Snapshot
	PreviewURL string `json:"preview_url,omitempty"`
}

type errorResponse struct {
	Error   string            `json:"error"`
	Reason  string            `json:"reason,omitempty"`
	Session *session.Snapshot `json:"session,omitempty"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}

	sess, err := s.sessions.Create(strings.TrimSpace(req.CurrentURL))
	if err != nil {
		if errors.Is(err, session.ErrTooManyOpen) {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
			return
		}
		s.logger.Errorf("create session failed err=%v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to create session"})
		return
	}

	w.Header().Set("Location", "/v1/sessions/"+sess.ID())
	writeJSON(w, http.StatusCreated, toSessionResponse(sess.Snapshot()))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess.Snapshot()))
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if !id.Valid(sessionID) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: session.ErrNotFound.Error()})
		return
	}
	if err := s.sessions.Close(sessionID); err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelectImage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	in, err := readImageUpload(w, r)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			err = fmt.Errorf("%w: request body exceeds %d bytes", domain.ErrInputTooLarge, maxBytesErr.Limit)
			s.metrics.recordOutcome("select", err)
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
				Error:  domain.UserMessage(err),
				Reason: domain.RejectReason(err),
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	snap, err := sess.Select(r.Context(), in)
	s.metrics.recordOutcome("select", err)
	if err != nil {
		s.writeSessionError(w, snap, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(snap))
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	snap, err := sess.Confirm(r.Context())
	s.metrics.recordOutcome("confirm", err)
	if err != nil {
		s.writeSessionError(w, snap, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(snap))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	snap, err := sess.Cancel()
	if err != nil {
		s.writeSessionError(w, snap, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(snap))
}

func (s *Server) handleRemoveImage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	snap, err := sess.Remove()
	if err != nil {
		s.writeSessionError(w, snap, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(snap))
}

func (s *Server) handleGetPreview(w http.ResponseWriter, r *http.Request) {
	data, ok := s.previews.Get(r.PathValue("handle"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "preview not found"})
		return
	}

	w.Header().Set("Content-Type", domain.OutputMIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type publishResponse struct {
	UploadID  string `json:"upload_id,omitempty"`
	Status    string `json:"status"`
	PublicURL string `json:"public_url,omitempty"`
	Fallback  bool   `json:"fallback"`
	StatusURL string `json:"status_url,omitempty"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var req domain.PublishRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	out, delivered := sess.Delivered()
	if !delivered {
		ref := sess.Reference()
		writeJSON(w, http.StatusOK, publishResponse{
			Status:    domain.UploadStatusPublished,
			PublicURL: ref,
			Fallback:  ref == domain.PlaceholderURL,
		})
		return
	}

	now := time.Now().UTC()
	upload := domain.Upload{
		ID:         id.New(),
		ListingID:  strings.TrimSpace(req.ListingID),
		SessionID:  sess.ID(),
		Status:     domain.UploadStatusPending,
		WebhookURL: strings.TrimSpace(req.WebhookURL),
		Bytes:      len(out.Data),
		Width:      out.Width,
		Height:     out.Height,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.uploads.Create(r.Context(), upload); err != nil {
		s.logger.Errorf("create upload failed upload_id=%s err=%v", upload.ID, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to create upload"})
		return
	}

	taskInfo, err := s.queueClient.EnqueuePublishPhoto(r.Context(), queue.PublishPhotoPayload{
		UploadID:    upload.ID,
		ListingID:   upload.ListingID,
		SessionID:   upload.SessionID,
		WebhookURL:  upload.WebhookURL,
		Data:        out.Data,
		Width:       out.Width,
		Height:      out.Height,
		RequestedAt: now,
	})
	if err != nil {
		s.logger.Errorf("enqueue failed upload_id=%s err=%v", upload.ID, err)
		if _, finishErr := s.uploads.Finish(r.Context(), upload.ID, domain.UploadStatusFailed, "", domain.PlaceholderURL); finishErr != nil {
			s.logger.Errorf("record placeholder failed upload_id=%s err=%v", upload.ID, finishErr)
		}
		s.metrics.placeholderFallbacks.Inc()
		writeJSON(w, http.StatusOK, publishResponse{
			UploadID:  upload.ID,
			Status:    domain.UploadStatusFailed,
			PublicURL: domain.PlaceholderURL,
			Fallback:  true,
			StatusURL: "/v1/uploads/" + upload.ID,
		})
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	if _, err := s.uploads.UpdateStatus(r.Context(), upload.ID, domain.UploadStatusQueued); err != nil {
		s.logger.Warnf("update status failed upload_id=%s err=%v", upload.ID, err)
	}

	writeJSON(w, http.StatusAccepted, publishResponse{
		UploadID:  upload.ID,
		Status:    domain.UploadStatusQueued,
		StatusURL: "/v1/uploads/" + upload.ID,
	})
}

func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	uploadID := r.PathValue("id")
	if !id.Valid(uploadID) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "upload not found"})
		return
	}

	upload, ok, err := s.uploads.Get(r.Context(), uploadID)
	if err != nil {
		s.logger.Errorf("fetch upload failed upload_id=%s err=%v", uploadID, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load upload"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "upload not found"})
		return
	}
	writeJSON(w, http.StatusOK, upload)
}

func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sessionID := r.PathValue("id")
	if !id.Valid(sessionID) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: session.ErrNotFound.Error()})
		return nil, false
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return nil, false
	}
	return sess, true
}

func (s *Server) writeSessionError(w http.ResponseWriter, snap session.Snapshot, err error) {
	status := statusForError(err)
	resp := errorResponse{Error: err.Error()}
	switch status {
	case http.StatusUnsupportedMediaType, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		resp.Error = domain.UserMessage(err)
		resp.Reason = domain.RejectReason(err)
	case http.StatusInternalServerError:
		s.logger.Errorf("session operation failed session_id=%s err=%v", snap.ID, err)
		resp.Error = "internal error"
	}
	if snap.ID != "" {
		resp.Session = &snap
	}
	writeJSON(w, status, resp)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrInputTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrDecode), errors.Is(err, domain.ErrEncode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrSuperseded), errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrClosed):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func toSessionResponse(snap session.Snapshot) sessionResponse {
	resp := sessionResponse{Snapshot: snap}
	if snap.PreviewHandle != "" {
		resp.PreviewURL = "/v1/previews/" + snap.PreviewHandle
	}
	return resp
}

// readImageUpload pulls the "file" part of a multipart request. The declared
// part content type and size are passed through unchecked.
func readImageUpload(w http.ResponseWriter, r *http.Request) (domain.RawImageInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, domain.MaxInputBytes+multipartOverhead)
	if err := r.ParseMultipartForm(domain.MaxInputBytes + multipartOverhead); err != nil {
		return domain.RawImageInput{}, fmt.Errorf("invalid multipart body: %w", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return domain.RawImageInput{}, fmt.Errorf("missing file field: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return domain.RawImageInput{}, fmt.Errorf("read file field: %w", err)
	}

	return domain.RawImageInput{
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Data:        data,
	}, nil
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
