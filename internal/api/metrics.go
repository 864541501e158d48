package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flockdir/photoflow/internal/domain"
	"github.com/flockdir/photoflow/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry             *prometheus.Registry
	requestTotal         *prometheus.CounterVec
	requestDuration      *prometheus.HistogramVec
	rateLimitRejected    *prometheus.CounterVec
	queueEnqueued        *prometheus.CounterVec
	pipelineOutcomes     *prometheus.CounterVec
	placeholderFallbacks prometheus.Counter
}

func newMetrics(openSessions func() int, previews previewReader) *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photoflow_api_requests_total",
			Help: "Total HTTP requests handled by the API.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "photoflow_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		rateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photoflow_api_rate_limit_rejections_total",
			Help: "Total API requests rejected by rate limiting.",
		}, []string{"route"}),
		queueEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photoflow_queue_uploads_enqueued_total",
			Help: "Total photo uploads enqueued for publishing.",
		}, []string{"queue"}),
		pipelineOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photoflow_api_pipeline_outcomes_total",
			Help: "Image pipeline runs by stage and outcome.",
		}, []string{"stage", "outcome"}),
		placeholderFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photoflow_api_placeholder_fallbacks_total",
			Help: "Publish requests answered with the placeholder because the upload could not be queued.",
		}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.rateLimitRejected,
		m.queueEnqueued,
		m.pipelineOutcomes,
		m.placeholderFallbacks,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "photoflow_api_open_sessions",
			Help: "Editing sessions currently open.",
		}, func() float64 { return float64(openSessions()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "photoflow_api_active_previews",
			Help: "Preview handles issued and not yet released.",
		}, func() float64 { return float64(previews.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "photoflow_api_preview_bytes",
			Help: "Bytes held by unreleased previews.",
		}, func() float64 { return float64(previews.Bytes()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "photoflow_api_oldest_preview_age_seconds",
			Help: "Age of the oldest unreleased preview; growth without bound means a leaked handle.",
		}, func() float64 { return previews.OldestAge().Seconds() }),
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) recordOutcome(stage string, err error) {
	m.pipelineOutcomes.WithLabelValues(stage, outcomeLabel(err)).Inc()
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, session.ErrSuperseded):
		return "superseded"
	case errors.Is(err, session.ErrInvalidTransition):
		return "invalid_transition"
	default:
		return domain.RejectReason(err)
	}
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		status := statusLabel(recorder.status)

		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}

// routeLabel maps a request path onto its route template so IDs and handles
// do not become label values.
func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case path == "/healthz" || path == "/metrics":
		return path
	case len(parts) == 3 && parts[0] == "v1" && parts[1] == "previews":
		return "/v1/previews/{handle}"
	case len(parts) == 3 && parts[0] == "v1" && parts[1] == "uploads":
		return "/v1/uploads/{id}"
	case len(parts) >= 2 && parts[0] == "v1" && parts[1] == "sessions":
		switch len(parts) {
		case 2:
			return "/v1/sessions"
		case 3:
			return "/v1/sessions/{id}"
		case 4:
			switch parts[3] {
			case "image", "confirm", "cancel", "publish":
				return "/v1/sessions/{id}/" + parts[3]
			}
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
