package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/flockdir/photoflow/internal/config"
	"github.com/flockdir/photoflow/internal/domain"
	"github.com/flockdir/photoflow/internal/publish"
	"github.com/flockdir/photoflow/internal/queue"
	"github.com/flockdir/photoflow/internal/store"
	"github.com/flockdir/photoflow/internal/telemetry"
	"github.com/flockdir/photoflow/internal/webhook"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	logger         logrus.FieldLogger
	server         *asynq.Server
	sem            chan struct{}
	publisher      photoPublisher
	webhookClient  webhookSender
	uploads        store.UploadStore
	metrics        *metrics
	tracer         trace.Tracer
	isFinalAttempt func(context.Context) bool
}

type photoPublisher interface {
	Publish(ctx context.Context, data []byte) (publish.Result, error)
	Remove(ctx context.Context, objectKey string) error
}

type webhookSender interface {
	SendPhotoEvent(ctx context.Context, endpoint, event string, evt webhook.PhotoEvent) error
}

func NewServer(
	logger logrus.FieldLogger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	publisher *publish.Publisher,
	webhookClient *webhook.Client,
	uploads store.UploadStore,
) (*Server, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if uploads == nil {
		return nil, fmt.Errorf("upload store is required")
	}

	var sender webhookSender
	if webhookClient != nil {
		sender = webhookClient
	}

	s := newServer(logger, publisher, sender, uploads, workerCfg.MaxActiveUploads)
	s.server = asynq.NewServer(
		queueCfg.RedisClientOpt(),
		asynq.Config{
			Concurrency: workerCfg.Concurrency,
			Queues: map[string]int{
				queueCfg.Name: 1,
			},
			LogLevel: asynq.InfoLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Warnf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
			}),
		},
	)
	return s, nil
}

func newServer(
	logger logrus.FieldLogger,
	publisher photoPublisher,
	webhookClient webhookSender,
	uploads store.UploadStore,
	maxActive int,
) *Server {
	return &Server{
		logger:         logger,
		sem:            make(chan struct{}, max(1, maxActive)),
		publisher:      publisher,
		webhookClient:  webhookClient,
		uploads:        uploads,
		metrics:        newMetrics(),
		tracer:         telemetry.Tracer("worker"),
		isFinalAttempt: finalAttempt,
	}
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypePublishPhoto, s.handlePublishPhoto)
	return s.server.Run(mux)
}

func (s *Server) Shutdown() {
	if s.server != nil {
		s.server.Shutdown()
	}
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handlePublishPhoto(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := "retry"

	payload, err := queue.ParsePublishPhotoPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.publish_photo", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("upload.id", payload.UploadID),
		attribute.String("listing.id", payload.ListingID),
		attribute.Int("upload.bytes", len(payload.Data)),
	)
	defer span.End()
	defer func() {
		s.metrics.uploadDuration.WithLabelValues(outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.uploadsTotal.WithLabelValues(outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeUploads.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeUploads.Dec()
	}()

	s.logger.Infof(
		"Publishing... upload_id=%s listing_id=%s bytes=%d size=%dx%d",
		payload.UploadID,
		payload.ListingID,
		len(payload.Data),
		payload.Width,
		payload.Height,
	)

	if _, err := s.uploads.UpdateStatus(ctx, payload.UploadID, domain.UploadStatusUploading); err != nil {
		if errors.Is(err, store.ErrUploadNotFound) {
			outcome = domain.UploadStatusFailed
			return fmt.Errorf("upload %s: %v: %w", payload.UploadID, err, asynq.SkipRetry)
		}
		s.logger.Warnf("upload status update failed upload_id=%s status=%s err=%v", payload.UploadID, domain.UploadStatusUploading, err)
	}

	res, err := s.publisher.Publish(ctx, payload.Data)
	if err != nil {
		span.RecordError(err)
		if !s.isFinalAttempt(ctx) {
			span.SetStatus(codes.Error, "upload failed, will retry")
			return fmt.Errorf("publish photo: %w", err)
		}

		outcome = domain.UploadStatusFailed
		span.SetStatus(codes.Error, "upload failed, placeholder recorded")
		s.metrics.placeholderFallbacks.Inc()
		s.logger.Warnf("upload failed on final attempt, using placeholder upload_id=%s err=%v", payload.UploadID, err)
		return s.settle(ctx, payload, domain.UploadStatusFailed, publish.Placeholder(), err)
	}

	if err := s.settle(ctx, payload, domain.UploadStatusPublished, res, nil); err != nil {
		if rmErr := s.publisher.Remove(context.WithoutCancel(ctx), res.ObjectKey); rmErr != nil {
			s.logger.Warnf("orphaned object cleanup failed upload_id=%s key=%s err=%v", payload.UploadID, res.ObjectKey, rmErr)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "record update failed")
		return err
	}

	outcome = domain.UploadStatusPublished
	s.metrics.uploadedBytesTotal.Add(float64(len(payload.Data)))
	span.SetStatus(codes.Ok, "published")
	s.logger.Infof("Published upload_id=%s key=%s url=%s", payload.UploadID, res.ObjectKey, res.URL)
	return nil
}

// settle records the final state of an upload and notifies the listing's webhook.
// Webhook failures are logged, not returned.
func (s *Server) settle(ctx context.Context, payload queue.PublishPhotoPayload, status string, res publish.Result, cause error) error {
	upload, err := s.uploads.Finish(ctx, payload.UploadID, status, res.ObjectKey, res.URL)
	if err != nil {
		return fmt.Errorf("finish upload %s: %w", payload.UploadID, err)
	}

	event := webhook.EventPhotoPublished
	evt := webhook.PhotoEvent{
		UploadID:   upload.ID,
		ListingID:  upload.ListingID,
		Status:     status,
		PublicURL:  res.URL,
		ObjectKey:  res.ObjectKey,
		OccurredAt: time.Now().UTC(),
	}
	if cause != nil {
		event = webhook.EventPhotoFailed
		evt.Error = cause.Error()
	}
	s.dispatchWebhook(ctx, payload, event, evt)
	return nil
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.PublishPhotoPayload, event string, evt webhook.PhotoEvent) {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return
	}

	if err := s.webhookClient.SendPhotoEvent(ctx, payload.WebhookURL, event, evt); err != nil {
		s.metrics.webhookFailures.Inc()
		s.logger.Warnf("webhook delivery failed upload_id=%s event=%s err=%v", payload.UploadID, event, err)
	}
}

// finalAttempt reports whether asynq will not retry the running task again.
// Outside of asynq there are no retries.
func finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}
