package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry             *prometheus.Registry
	uploadsTotal         *prometheus.CounterVec
	uploadDuration       *prometheus.HistogramVec
	activeUploads        prometheus.Gauge
	uploadedBytesTotal   prometheus.Counter
	placeholderFallbacks prometheus.Counter
	webhookFailures      prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photoflow_worker_uploads_total",
			Help: "Total photo publish attempts by outcome (published, failed, retry).",
		}, []string{"outcome"}),
		uploadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "photoflow_worker_upload_duration_seconds",
			Help:    "Duration of each photo publish attempt.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		activeUploads: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "photoflow_worker_active_uploads",
			Help: "Current number of photo uploads in flight.",
		}),
		uploadedBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photoflow_worker_uploaded_bytes_total",
			Help: "Total JPEG bytes written to object storage.",
		}),
		placeholderFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photoflow_worker_placeholder_fallbacks_total",
			Help: "Uploads settled with the placeholder image after exhausting retries.",
		}),
		webhookFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photoflow_worker_webhook_failures_total",
			Help: "Webhook deliveries that failed after all attempts.",
		}),
	}

	registry.MustRegister(
		m.uploadsTotal,
		m.uploadDuration,
		m.activeUploads,
		m.uploadedBytesTotal,
		m.placeholderFallbacks,
		m.webhookFailures,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
