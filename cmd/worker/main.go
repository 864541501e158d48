package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/flockdir/photoflow/internal/config"
	"github.com/flockdir/photoflow/internal/logging"
	"github.com/flockdir/photoflow/internal/publish"
	"github.com/flockdir/photoflow/internal/storage"
	"github.com/flockdir/photoflow/internal/store"
	"github.com/flockdir/photoflow/internal/telemetry"
	"github.com/flockdir/photoflow/internal/webhook"
	"github.com/flockdir/photoflow/internal/worker"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg := config.Load()
	logger := logging.New("worker", cfg.LogLevel)
	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "photoflow-worker",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warnf("tracing shutdown error: %v", err)
		}
	}()

	objects, err := storage.New(ctx, storage.Config{
		Driver:        cfg.Storage.Driver,
		Endpoint:      cfg.Storage.Endpoint,
		Access:        cfg.Storage.AccessKey,
		Secret:        cfg.Storage.SecretKey,
		Region:        cfg.Storage.Region,
		Bucket:        cfg.Storage.Bucket,
		UseSSL:        cfg.Storage.UseSSL,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	})
	if err != nil {
		logger.Fatalf("object storage setup failed driver=%s: %v", cfg.Storage.Driver, err)
	}

	bucketCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	if err := objects.EnsureBucket(bucketCtx); err != nil {
		logger.Warnf("ensure bucket failed bucket=%s err=%v", cfg.Storage.Bucket, err)
	}
	cancel()

	uploads, closeUploads, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatalf("open upload store driver=%s: %v", cfg.Database.Driver, err)
	}
	defer func() {
		if err := closeUploads(); err != nil {
			logger.Warnf("upload store close error: %v", err)
		}
	}()

	publisher := publish.NewPublisher(objects, cfg.Storage.KeyPrefix, logger)
	webhookClient := webhook.NewClient(webhook.Config{
		SigningSecret:  cfg.Webhook.SigningSecret,
		Timeout:        cfg.Webhook.Timeout,
		MaxAttempts:    cfg.Webhook.MaxAttempts,
		InitialBackoff: cfg.Webhook.InitialBackoff,
		MaxBackoff:     cfg.Webhook.MaxBackoff,
	})

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, publisher, webhookClient, uploads)
	if err != nil {
		logger.Fatalf("worker setup failed: %v", err)
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           srv.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server failed: %v", err)
		}
	}()

	logger.Infof(
		"starting worker concurrency=%d max_active_uploads=%d queue=%s redis=%s bucket=%s",
		cfg.Worker.Concurrency,
		cfg.Worker.MaxActiveUploads,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
		cfg.Storage.Bucket,
	)

	// Run blocks until SIGINT or SIGTERM.
	runErr := srv.Run()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("metrics server shutdown error: %v", err)
	}

	if runErr != nil {
		logger.Fatalf("worker failed: %v", runErr)
	}
}
