package audit

import (
	"context"
	"log/slog"
)

// Emitter accepts audit events.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Worker decouples emission from slow sinks. Emit enqueues without blocking;
// Run drains the queue into the wrapped emitter until ctx is done.
type Worker struct {
	next   Emitter
	inbox  chan Event
	logger *slog.Logger
}

// NewWorker creates a worker with a queue of the given capacity.
func NewWorker(next Emitter, capacity int, logger *slog.Logger) *Worker {
	if capacity <= 0 {
		capacity = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{next: next, inbox: make(chan Event, capacity), logger: logger}
}

// Emit queues event. A full queue drops the event and logs it.
func (w *Worker) Emit(ctx context.Context, event Event) error {
	select {
	case w.inbox <- event:
	default:
		w.logger.WarnContext(ctx, "audit queue full, event dropped",
			"batch_id", event.BatchID,
			"action", string(event.Action),
		)
	}
	return nil
}

// Run processes queued events until ctx is cancelled, then flushes what is
// already queued.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event := <-w.inbox:
			// sink errors are logged by the publisher
			_ = w.next.Emit(ctx, event)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case event := <-w.inbox:
			_ = w.next.Emit(context.Background(), event)
		default:
			return
		}
	}
}
