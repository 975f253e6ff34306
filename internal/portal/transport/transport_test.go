package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alloggiati/internal/portal/portalerr"
	"alloggiati/internal/portal/soap"
	"alloggiati/pkg/platform/circuit"
)

func TestSend_PostsEnvelopeWithHeaders(t *testing.T) {
	var gotMethod, gotAction, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAction = r.Header.Get("SOAPAction")
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte("<ok/>"))
	}))
	defer srv.Close()

	tr := New(WithEndpoint(srv.URL))
	body, err := tr.Send(context.Background(), []byte("<env/>"), soap.OpSend)
	require.NoError(t, err)

	assert.Equal(t, "<ok/>", string(body))
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "AlloggiatiService/Send", gotAction)
	assert.Equal(t, "text/xml; charset=utf-8", gotType)
	assert.Equal(t, "<env/>", gotBody)
}

func TestSend_NonSuccessStatusIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(WithEndpoint(srv.URL)).Send(context.Background(), []byte("<env/>"), soap.OpTest)
	require.Error(t, err)

	assert.ErrorIs(t, err, portalerr.ErrTransport)
	assert.Equal(t, portalerr.KindTransport, portalerr.KindOf(err))
	assert.True(t, portalerr.IsRetryable(err))

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.Contains(t, se.Body, "bad gateway")
}

func TestSend_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(WithEndpoint(srv.URL), WithTimeout(50*time.Millisecond)).
		Send(context.Background(), []byte("<env/>"), soap.OpSend)
	require.Error(t, err)

	var pe *portalerr.Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, portalerr.KindTransport, pe.Kind)
	assert.True(t, pe.Timeout)
	assert.True(t, pe.Retryable)
}

func TestSend_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(WithEndpoint(url)).Send(context.Background(), []byte("<env/>"), soap.OpGenerateToken)
	assert.ErrorIs(t, err, portalerr.ErrTransport)
	assert.Equal(t, portalerr.KindTransport, portalerr.KindOf(err))
}

func TestSend_CallerCancellationIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	breaker := circuit.New("portal", circuit.WithFailureThreshold(1))
	_, err := New(WithEndpoint(srv.URL), WithBreaker(breaker)).Send(ctx, []byte("<env/>"), soap.OpSend)
	require.Error(t, err)
	assert.False(t, portalerr.IsRetryable(err))
	assert.False(t, breaker.IsOpen())
}

func TestSend_CircuitBreakerFailsFast(t *testing.T) {
	var calls atomic.Int32
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("<ok/>"))
	}))
	defer srv.Close()

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	breaker := circuit.New("portal",
		circuit.WithFailureThreshold(2),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return now }),
	)
	tr := New(WithEndpoint(srv.URL), WithBreaker(breaker))

	for i := 0; i < 2; i++ {
		_, err := tr.Send(context.Background(), []byte("<env/>"), soap.OpTest)
		require.Error(t, err)
	}
	require.True(t, breaker.IsOpen())

	_, err := tr.Send(context.Background(), []byte("<env/>"), soap.OpTest)
	assert.ErrorIs(t, err, portalerr.ErrCircuitOpen)
	assert.ErrorIs(t, err, portalerr.ErrTransport)
	assert.False(t, portalerr.IsRetryable(err))
	assert.Equal(t, int32(2), calls.Load())

	// after cooldown a probe goes through and a success closes the circuit
	now = now.Add(time.Minute)
	healthy.Store(true)
	_, err = tr.Send(context.Background(), []byte("<env/>"), soap.OpTest)
	require.NoError(t, err)
	assert.False(t, breaker.IsOpen())
	assert.Equal(t, int32(3), calls.Load())
}
