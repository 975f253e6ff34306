package audit

import "context"

// Store is an audit sink. Implementations must be safe for concurrent use.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Lister is implemented by sinks that can be queried.
type Lister interface {
	ListByBatch(ctx context.Context, batchID string) ([]Event, error)
}
