package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flockdir/photoflow/internal/api"
	"github.com/flockdir/photoflow/internal/config"
	"github.com/flockdir/photoflow/internal/logging"
	"github.com/flockdir/photoflow/internal/pipeline"
	"github.com/flockdir/photoflow/internal/preview"
	"github.com/flockdir/photoflow/internal/queue"
	"github.com/flockdir/photoflow/internal/ratelimit"
	"github.com/flockdir/photoflow/internal/session"
	"github.com/flockdir/photoflow/internal/store"
	"github.com/flockdir/photoflow/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg := config.Load()
	logger := logging.New("api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "photoflow-api",
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

	if err := pipeline.Startup(); err != nil {
		logger.Fatalf("image runtime startup failed: %v", err)
	}
	defer pipeline.Shutdown()

	processor, err := pipeline.NewProcessor()
	if err != nil {
		logger.Fatalf("initialize pipeline processor: %v", err)
	}

	previews := preview.NewRegistry(cfg.Preview.MaxEntries)
	sessions := session.NewManager(processor, previews, logger, session.Config{
		MaxSessions: cfg.Session.MaxSessions,
		IdleTTL:     cfg.Session.IdleTTL,
	})
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sessions.Run(ctx, cfg.Session.SweepInterval)
	}()

	uploads, closeUploads, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatalf("open upload store driver=%s: %v", cfg.Database.Driver, err)
	}
	defer func() {
		if err := closeUploads(); err != nil {
			logger.Warnf("upload store close error: %v", err)
		}
	}()

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warnf("queue client close error: %v", err)
		}
	}()

	var limiter api.RateLimiter = ratelimit.Unlimited{}
	if cfg.RateLimit.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer rdb.Close()

		bucket, err := ratelimit.NewRedisTokenBucket(rdb, cfg.RateLimit.Capacity, cfg.RateLimit.Window, "")
		if err != nil {
			logger.Fatalf("rate limiter setup failed: %v", err)
		}
		limiter = bucket
	}

	app := api.NewServer(logger, sessions, previews, queueClient, uploads, limiter)
	subjects, err := ratelimit.NewSubjects(cfg.RateLimit.TrustedProxies)
	if err != nil {
		logger.Fatalf("rate limit trusted proxies: %v", err)
	}
	app.TrustProxies(subjects)

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s db=%s queue=%s", cfg.API.Addr, cfg.Database.Driver, cfg.Queue.Name)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("graceful shutdown failed: %v", err)
	}
	<-sweepDone
}
