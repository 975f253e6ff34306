package httpapi

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"alloggiati/internal/platform/middleware"
	"alloggiati/pkg/requestcontext"
	"alloggiati/pkg/testutil"
)

type stubRoutes struct {
	requestID string
	clientIP  string
	deadline  bool
}

func (p *stubRoutes) Register(r chi.Router) {
	r.Get("/v1/stub", func(w http.ResponseWriter, r *http.Request) {
		p.requestID = requestcontext.RequestID(r.Context())
		p.clientIP = requestcontext.ClientIP(r.Context())
		_, p.deadline = r.Context().Deadline()
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/v1/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
}

func TestNewRouter_MiddlewareChain(t *testing.T) {
	routes := &stubRoutes{}
	router := NewRouter(Deps{RequestTimeout: 2 * time.Second, Routes: []Registrar{routes}})

	req := testutil.NewRequest(t, http.MethodGet, "/v1/stub")
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusNoContent)
	assert.Equal(t, "req-42", rr.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, "req-42", routes.requestID)
	assert.Equal(t, "203.0.113.7", routes.clientIP)
	assert.True(t, routes.deadline)
}

func TestNewRouter_RecoversPanics(t *testing.T) {
	router := NewRouter(Deps{Routes: []Registrar{&stubRoutes{}}})

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/v1/panic"))

	testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, "internal_error")
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		router := NewRouter(Deps{
			TokenStates: func() map[string]string { return map[string]string{"hotel01": "valid"} },
			Checks:      map[string]HealthCheck{"redis": func(context.Context) error { return nil }},
		})

		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/health"))

		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[HealthResponse](t, rr)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "valid", resp.Tokens["hotel01"])
		assert.Equal(t, "ok", resp.Checks["redis"])
	})

	t.Run("failing dependency", func(t *testing.T) {
		router := NewRouter(Deps{
			Checks: map[string]HealthCheck{"postgres": func(context.Context) error { return errors.New("connection refused") }},
		})

		rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/health"))

		testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
		resp := testutil.UnmarshalResponse[HealthResponse](t, rr)
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, "connection refused", resp.Checks["postgres"])
	})
}

func TestMetricsRoute(t *testing.T) {
	router := NewRouter(Deps{Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("alloggiati_build_info 1\n"))
	})})

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))

	testutil.AssertStatusOK(t, rr)
	assert.Contains(t, rr.Body.String(), "alloggiati_build_info")
}
