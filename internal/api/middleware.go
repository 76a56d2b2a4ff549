package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"wavepick/internal/metrics"
)

func metricsHandler() http.Handler {
	metrics.RegisterDefault()
	return promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the response code while keeping the streaming
// interfaces SSE and websocket upgrades rely on.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	return h.Hijack()
}

// routeLabel collapses ids so metric labels stay bounded.
func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "v1" {
		parts[2] = "{id}"
	}
	return "/" + strings.Join(parts, "/")
}

func instrument(next http.Handler) http.Handler {
	metrics.RegisterDefault()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		dur := time.Since(start)
		route := routeLabel(r.URL.Path)
		status := strconv.Itoa(rec.code)
		metrics.HTTPRequests.WithLabelValues(r.Method, route, status).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, route, status).Observe(dur.Seconds())
		log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("status", rec.code).
			WithField("remote", r.RemoteAddr).
			WithField("dur", dur).
			Debug("request")
	})
}

// tenantLimiter hands out one token bucket per tenant.
type tenantLimiter struct {
	mu    sync.Mutex
	rps   rate.Limit
	burst int
	byKey map[string]*rate.Limiter
}

func newTenantLimiter(rps float64, burst int) *tenantLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &tenantLimiter{rps: rate.Limit(rps), burst: burst, byKey: map[string]*rate.Limiter{}}
}

func (t *tenantLimiter) allow(key string) bool {
	t.mu.Lock()
	l, ok := t.byKey[key]
	if !ok {
		l = rate.NewLimiter(t.rps, t.burst)
		t.byKey[key] = l
	}
	t.mu.Unlock()
	return l.Allow()
}

// rateLimit applies RATE_RPS/RATE_BURST per tenant to /v1 requests. A
// non-positive rate disables limiting.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.Cfg.Server.RateRPS <= 0 {
		return next
	}
	lim := newTenantLimiter(s.Cfg.Server.RateRPS, s.Cfg.Server.RateBurst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/") && !lim.allow(s.getPrincipal(r).Tenant) {
			w.Header().Set("Retry-After", "1")
			writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}
