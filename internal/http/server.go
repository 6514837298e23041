// Package http serves the SmartBudget JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"smartbudget/internal/core"
	"smartbudget/internal/log"
	"smartbudget/internal/middleware/ratelimit"
	"smartbudget/internal/middleware/security"
	"smartbudget/internal/middleware/trace"
	"smartbudget/internal/services"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Deps are the collaborators a Server dispatches to.
type Deps struct {
	Expenses *services.ExpenseService
	Alerts   *services.AlertService

	// Ready reports whether the backing store answers. Nil means always ready.
	Ready func(context.Context) error

	// StatsCacheSize reports the statistics cache occupancy for /metrics.
	StatsCacheSize func() int

	// TrustedProxies are CIDRs whose X-Forwarded-For and X-Real-IP headers
	// are believed when resolving the client IP.
	TrustedProxies []string

	// WriteLimitPerMinute bounds mutating requests per user. Zero uses the
	// limiter default.
	WriteLimitPerMinute int
}

type Server struct {
	http.Server
	expenses *services.ExpenseService
	alerts   *services.AlertService
	ready    func(context.Context) error
	statsLen func() int

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	logger           *log.Logger
	started          time.Time
	now              func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps, logger *log.Logger) *Server {
	logger = logger.WithComponent(log.ComponentHTTP)
	detector := security.NewDetector()
	for _, cidr := range deps.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, "error", err)
		}
	}

	s := &Server{
		expenses:         deps.Expenses,
		alerts:           deps.Alerts,
		ready:            deps.Ready,
		statsLen:         deps.StatsCacheSize,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.WriteLimitPerMinute}),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP, logger),
		logger:           logger,
		started:          time.Now(),
		now:              time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /api/expenses", s.withUser(s.handleCreateExpense))
	mux.HandleFunc("GET /api/expenses", s.withUser(s.handleListExpenses))
	mux.HandleFunc("GET /api/expenses/{id}", s.withUser(s.handleGetExpense))
	mux.HandleFunc("PUT /api/expenses/{id}", s.withUser(s.handleUpdateExpense))
	mux.HandleFunc("DELETE /api/expenses/{id}", s.withUser(s.handleDeleteExpense))
	mux.HandleFunc("GET /api/statistics", s.withUser(s.handleStatistics))

	mux.HandleFunc("GET /api/budget-profile", s.withUser(s.handleGetProfile))
	mux.HandleFunc("PUT /api/budget-profile", s.withUser(s.handlePutProfile))
	mux.HandleFunc("GET /api/budget-status", s.withUser(s.handleBudgetStatus))
	mux.HandleFunc("GET /api/anomalies", s.withUser(s.handleAnomalies))

	mux.HandleFunc("GET /api/alerts", s.withUser(s.handleListAlerts))
	mux.HandleFunc("POST /api/alerts", s.withUser(s.handleCreateAlert))
	mux.HandleFunc("GET /api/alerts/unread-count", s.withUser(s.handleUnreadCount))
	mux.HandleFunc("PUT /api/alerts/mark-all-read", s.withUser(s.handleMarkAllRead))
	mux.HandleFunc("POST /api/alerts/check-budget", s.withUser(s.handleCheckBudget))
	mux.HandleFunc("GET /api/alerts/{id}", s.withUser(s.handleGetAlert))
	mux.HandleFunc("PUT /api/alerts/{id}/read", s.withUser(s.handleMarkRead))
	mux.HandleFunc("DELETE /api/alerts/{id}", s.withUser(s.handleDeleteAlert))

	limited := s.rateLimiter.Middleware(s.rateLimitKey, s.onRateLimited,
		http.MethodGet, http.MethodHead, http.MethodOptions)(mux)

	var handler http.Handler = limited
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = detector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)
	handler = log.Middleware(logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// rateLimitKey limits per user when identified, else per client IP.
func (s *Server) rateLimitKey(r *http.Request) string {
	if id, err := userID(r); err == nil {
		return "user:" + id
	}
	return "ip:" + s.securityDetector.ExtractClientIP(r)
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().
		Status(http.StatusTooManyRequests).
		Body(errorBody{Error: "rate limit exceeded", Code: "rate_limited"}).
		Write(w)
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

// withUser resolves the caller from the X-User-ID header.
func (s *Server) withUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := userID(r)
		if err != nil {
			NewJSONResponse().
				Status(http.StatusUnauthorized).
				Body(errorBody{Error: err.Error(), Code: "missing_user"}).
				Write(w)
			return
		}
		ctx := context.WithValue(r.Context(), log.LoggerContextKey, log.FromContext(r.Context()).With(log.FieldUserID, id))
		next(w, r.WithContext(ctx), id)
	}
}

func (s *Server) currentMonth() core.Period {
	start, end := core.MonthRange(s.now())
	return core.Period{Start: start, End: end}
}
