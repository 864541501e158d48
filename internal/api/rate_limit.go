package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/flockdir/photoflow/internal/ratelimit"
)

type RateLimiter = ratelimit.Limiter

// TrustProxies lets X-Forwarded-For from the given proxies pick the rate
// limit subject. Without it requests are keyed on the remote host.
func (s *Server) TrustProxies(subjects ratelimit.Subjects) {
	s.subjects = subjects
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := routeLabel(r.URL.Path)
		if !shouldRateLimit(r.Method, route) {
			next.ServeHTTP(w, r)
			return
		}

		subject := s.subjects.FromRequest(r) + ":" + route

		decision, err := s.rateLimiter.Allow(r.Context(), subject)
		if err != nil {
			s.logger.Warnf("rate limiter check failed subject=%s err=%v", subject, err)
			next.ServeHTTP(w, r)
			return
		}

		if decision.Remaining >= 0 {
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		}
		if decision.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		retryAfter := int(decision.RetryAfter.Round(time.Second).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		s.metrics.rateLimitRejected.WithLabelValues(route).Inc()
		writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error: "rate limit exceeded",
		})
	})
}

// shouldRateLimit limits the routes that create sessions, accept image bytes
// or start uploads.
func shouldRateLimit(method, route string) bool {
	if method != http.MethodPost {
		return false
	}
	switch route {
	case "/v1/sessions", "/v1/sessions/{id}/image", "/v1/sessions/{id}/publish":
		return true
	default:
		return false
	}
}
