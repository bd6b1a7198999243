// Package http serves the optional local status surface of the auth core:
// liveness, readiness, the current session summary and Prometheus metrics.
// It never exposes token material.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/maidrobe/internal/auth/service"
	"github.com/aussiebroadwan/maidrobe/internal/auth/store"
	"github.com/aussiebroadwan/maidrobe/pkg/httpx"
	"github.com/aussiebroadwan/maidrobe/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	State        *service.SessionState
	Scheduler    RefreshScheduler     // Optional: reports the next proactive refresh
	Connectivity service.Connectivity // Optional: reported by /readyz
	Metrics      http.Handler         // Optional: served at /metrics
	Clock        clockwork.Clock

	// Per-route request budgets, read by ApplyRoutes.
	ProbeBudget  httpx.Budget
	ScrapeBudget httpx.Budget
	StatusBudget httpx.Budget
}

// RefreshScheduler is satisfied by *service.RefreshManager.
type RefreshScheduler interface {
	NextRefreshAt() time.Time
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       slogx.Or(logger),
		ProbeBudget:  httpx.ProbeBudget,
		ScrapeBudget: httpx.ScrapeBudget,
		StatusBudget: httpx.StatusBudget,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerSystem()
	r.registerSession()
	r.registerMetrics()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.Throttle("livez", r.StatusBudget),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.Connectivity),
			httpx.Throttle("readyz", r.ProbeBudget),
		),
	)
}

func (r *Router) registerSession() {
	if r.State == nil {
		return
	}
	h := &SessionHandler{
		State:     r.State,
		Scheduler: r.Scheduler,
		Clock:     r.Clock,
	}
	r.Mux.Handle("GET /v1/session",
		httpx.Chain(h,
			httpx.Throttle("session", r.StatusBudget),
		),
	)
}

func (r *Router) registerMetrics() {
	if r.Metrics == nil {
		return
	}
	r.Mux.Handle("GET /metrics",
		httpx.Chain(r.Metrics,
			httpx.Throttle("metrics", r.ScrapeBudget),
		),
	)
}
