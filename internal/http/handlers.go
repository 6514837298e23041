package http

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks that the store answers within a short deadline.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]string{"store": "ok"}
	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			status, code = "not_ready", http.StatusServiceUnavailable
			checks["store"] = "failed: " + err.Error()
		}
	}

	NewJSONResponse().Status(code).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides request and security counters in Prometheus text
// format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	trace := s.traceMiddleware.GetMetrics()
	limits := s.rateLimiter.GetMetrics()
	sec := s.securityDetector.GetMetrics()
	cacheEntries := 0
	if s.statsLen != nil {
		cacheEntries = s.statsLen()
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", trace.TotalRequests)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", trace.ServerErrors)
	metric("http_response_time_avg_seconds", "gauge", "Average response time", trace.AverageResponseTime.Seconds())
	metric("rate_limit_hits_total", "counter", "Total rate limit hits", limits.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", limits.ClientCount)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", sec.SuspiciousRequests)
	metric("statistics_cache_entries", "gauge", "Cached statistics responses", cacheEntries)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(time.Since(s.started).Seconds()))
}
