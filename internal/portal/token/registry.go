package token

import (
	"context"
	"sync"

	"alloggiati/internal/portal/models"
)

// Registry keeps one Manager per portal username so that every caller using
// the same account shares a single token and a single refresh flight.
type Registry struct {
	auth Authenticator
	opts []Option

	mu       sync.Mutex
	managers map[string]*Manager
}

// NewRegistry creates managers on demand with opts applied to each.
func NewRegistry(auth Authenticator, opts ...Option) *Registry {
	return &Registry{
		auth:     auth,
		opts:     opts,
		managers: make(map[string]*Manager),
	}
}

// Manager returns the manager for creds.Username. Changed credentials replace
// the manager and drop its cached token.
func (r *Registry) Manager(creds models.Credentials) *Manager {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.managers[creds.Username]; ok && m.creds == creds {
		return m
	}
	m := NewManager(creds, r.auth, r.opts...)
	r.managers[creds.Username] = m
	return m
}

// TokenFor returns a valid token for creds.
func (r *Registry) TokenFor(ctx context.Context, creds models.Credentials) (models.AuthToken, error) {
	return r.Manager(creds).GetValidToken(ctx)
}

// States reports the token state of every known account.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	managers := make(map[string]*Manager, len(r.managers))
	for k, v := range r.managers {
		managers[k] = v
	}
	r.mu.Unlock()

	out := make(map[string]State, len(managers))
	for k, m := range managers {
		out[k] = m.State()
	}
	return out
}
