// Package token caches the portal's session token per credential set.
//
// A token is reused while now < expires_at - safety margin. When it is missing
// or stale, exactly one authentication call is made no matter how many
// goroutines ask for it concurrently; the others wait for and share its
// result. Failed authentications are never cached.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"alloggiati/internal/portal/metrics"
	"alloggiati/internal/portal/models"
	"alloggiati/internal/portal/portalerr"
	"alloggiati/internal/portal/soap"
	"alloggiati/internal/portal/transport"
)

// DefaultSafetyMargin is subtracted from the portal's expiry time.
const DefaultSafetyMargin = 2 * time.Minute

// State describes the cached token.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateValid           State = "valid"
	StateExpired         State = "expired"
)

// Authenticator obtains a fresh token for a credential set.
type Authenticator interface {
	Authenticate(ctx context.Context, creds models.Credentials) (models.AuthToken, error)
}

// PortalAuthenticator calls GenerateToken through a transport.
type PortalAuthenticator struct {
	sender transport.Sender
}

func NewPortalAuthenticator(sender transport.Sender) *PortalAuthenticator {
	return &PortalAuthenticator{sender: sender}
}

// Authenticate returns an auth error for rejected credentials or an unusable
// response. Transport failures keep their transport kind.
func (a *PortalAuthenticator) Authenticate(ctx context.Context, creds models.Credentials) (models.AuthToken, error) {
	op := string(soap.OpGenerateToken)
	env, err := soap.BuildAuthRequest(creds.Username, creds.Password, creds.WSKey)
	if err != nil {
		return models.AuthToken{}, portalerr.New(portalerr.KindInternal, op, "build request", err)
	}
	raw, err := a.sender.Send(ctx, env, soap.OpGenerateToken)
	if err != nil {
		return models.AuthToken{}, err
	}
	res, err := soap.ParseAuthResponse(raw)
	if err != nil {
		return models.AuthToken{}, portalerr.New(portalerr.KindAuth, op, "unusable token response", fmt.Errorf("%w: %w", portalerr.ErrAuthFailed, err))
	}
	if !res.Outcome.Esito {
		e := portalerr.New(portalerr.KindAuth, op, res.Outcome.Description, portalerr.ErrAuthFailed)
		e.Code = res.Outcome.Code
		e.Detail = res.Outcome.Detail
		return models.AuthToken{}, e
	}
	return res.Token, nil
}

// Manager serves tokens for one credential set. It is safe for concurrent use.
type Manager struct {
	creds  models.Credentials
	auth   Authenticator
	margin time.Duration
	clock  func() time.Time

	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	current  models.AuthToken
	inflight bool
	group    singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithSafetyMargin sets how long before expiry a token stops being reused.
func WithSafetyMargin(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.margin = d
		}
	}
}

// WithClock injects the time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a Manager with no cached token.
func NewManager(creds models.Credentials, auth Authenticator, opts ...Option) *Manager {
	m := &Manager{
		creds:  creds,
		auth:   auth,
		margin: DefaultSafetyMargin,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetValidToken returns the cached token if still usable, otherwise
// authenticates once on behalf of all concurrent callers.
func (m *Manager) GetValidToken(ctx context.Context) (models.AuthToken, error) {
	m.mu.Lock()
	if m.current.UsableAt(m.clock(), m.margin) {
		tok := m.current
		m.mu.Unlock()
		return tok, nil
	}
	m.mu.Unlock()

	ch := m.group.DoChan(m.creds.Username, func() (any, error) {
		return m.refresh(ctx)
	})
	select {
	case <-ctx.Done():
		return models.AuthToken{}, waitError(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return models.AuthToken{}, res.Err
		}
		return res.Val.(models.AuthToken), nil
	}
}

// waitError reports a caller giving up on the shared flight as a transport
// failure. A cancelled caller is not retried.
func waitError(err error) error {
	pe := portalerr.Transport(string(soap.OpGenerateToken), errors.Is(err, context.DeadlineExceeded), err)
	if errors.Is(err, context.Canceled) {
		pe.Retryable = false
	}
	return pe
}

func (m *Manager) refresh(ctx context.Context) (models.AuthToken, error) {
	// Another flight may have finished between the fast path and here.
	m.mu.Lock()
	if m.current.UsableAt(m.clock(), m.margin) {
		tok := m.current
		m.mu.Unlock()
		return tok, nil
	}
	m.inflight = true
	m.mu.Unlock()

	// The flight is shared, so one caller's cancellation must not fail the others.
	tok, err := m.auth.Authenticate(context.WithoutCancel(ctx), m.creds)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight = false
	if err != nil {
		m.metrics.IncrementTokenRefresh("failure")
		m.logger.WarnContext(ctx, "portal authentication failed",
			"username", m.creds.Username,
			"error_kind", string(portalerr.KindOf(err)),
			"error", err,
		)
		return models.AuthToken{}, err
	}
	if !tok.UsableAt(m.clock(), m.margin) {
		m.metrics.IncrementTokenRefresh("failure")
		return models.AuthToken{}, portalerr.New(portalerr.KindAuth, string(soap.OpGenerateToken),
			fmt.Sprintf("token expires at %s, inside the safety margin", tok.ExpiresAt.Format(time.RFC3339)),
			portalerr.ErrAuthFailed)
	}
	m.current = tok
	m.metrics.IncrementTokenRefresh("success")
	m.logger.InfoContext(ctx, "portal token acquired",
		"username", m.creds.Username,
		"expires_at", tok.ExpiresAt,
	)
	return tok, nil
}

// Invalidate drops the cached token if it is still tok. Callers use it when
// the portal refuses a token before its advertised expiry.
func (m *Manager) Invalidate(tok models.AuthToken) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.Value != "" && m.current.Value == tok.Value {
		m.current = models.AuthToken{}
	}
}

// State reports the cache state at the current clock.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.inflight:
		return StateAuthenticating
	case m.current.Value == "":
		return StateUnauthenticated
	case m.current.UsableAt(m.clock(), m.margin):
		return StateValid
	default:
		return StateExpired
	}
}

// IsAuthError reports whether err came from rejected credentials or an
// unusable token response.
func IsAuthError(err error) bool {
	return errors.Is(err, portalerr.ErrAuthFailed)
}
