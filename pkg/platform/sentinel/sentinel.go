package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers
// return these (optionally wrapped) so callers can branch on them without
// knowing the backend:
// - ErrNotFound: entry does not exist or has expired
// - ErrUnavailable: dependency temporarily unavailable
//
// Portal failures use the taxonomy in internal/portal/portalerr instead.
var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("unavailable")
)
