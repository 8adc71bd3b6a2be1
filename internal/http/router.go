// Package httpapi assembles the public HTTP surface: middleware chain,
// document routes, health and metrics.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"approvals/internal/document/handler"
	"approvals/internal/platform/metrics"
	"approvals/internal/platform/middleware"
	"approvals/pkg/platform/httputil"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps is everything the router needs.
type Deps struct {
	Documents      *handler.Handler
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	HealthChecks   []HealthCheck
	RequestTimeout time.Duration
}

// NewRouter wires all public endpoints. Handlers delegate to services and
// carry no business logic.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.LatencyMiddleware(deps.Metrics))
	if deps.RequestTimeout > 0 {
		r.Use(middleware.Timeout(deps.RequestTimeout))
	}

	r.Get("/healthz", healthz(deps.HealthChecks))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	deps.Documents.Register(r)
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthz(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for _, c := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := c.Check(ctx)
			cancel()
			if err != nil {
				resp.Checks[c.Name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.Name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
