// Package httpapi assembles the gateway's HTTP surface.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"alloggiati/internal/platform/middleware"
	"alloggiati/pkg/platform/httputil"
	"alloggiati/pkg/platform/middleware/metadata"
	"alloggiati/pkg/platform/middleware/requesttime"
)

// Registrar mounts a group of routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Deps is everything the router needs.
type Deps struct {
	Logger         *slog.Logger
	RequestTimeout time.Duration
	Routes         []Registrar
	// TokenStates reports the session state per portal account.
	TokenStates func() map[string]string
	Checks      map[string]HealthCheck
	Metrics     http.Handler
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Tokens map[string]string `json:"tokens,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewRouter wires the middleware chain and all public endpoints.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Logger(logger))

	r.Get("/health", health(d))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Group(func(r chi.Router) {
		if d.RequestTimeout > 0 {
			r.Use(middleware.Timeout(d.RequestTimeout))
		}
		for _, routes := range d.Routes {
			routes.Register(r)
		}
	})
	return r
}

// health reports 503 when any dependency check fails. Token states are
// informational: an unauthenticated account is not unhealthy.
func health(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok"}
		if d.TokenStates != nil {
			resp.Tokens = d.TokenStates()
		}

		status := http.StatusOK
		if len(d.Checks) > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			resp.Checks = make(map[string]string, len(d.Checks))
			for name, check := range d.Checks {
				if err := check(ctx); err != nil {
					resp.Checks[name] = err.Error()
					resp.Status = "degraded"
					status = http.StatusServiceUnavailable
					continue
				}
				resp.Checks[name] = "ok"
			}
		}
		httputil.WriteJSON(w, status, resp)
	}
}
