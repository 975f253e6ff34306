package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alloggiati/internal/audit"
	"alloggiati/internal/audit/store/memory"
)

type failingStore struct{ calls int }

func (f *failingStore) Append(context.Context, audit.Event) error {
	f.calls++
	return errors.New("sink down")
}

func TestPublisher_StampsAndFansOut(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	a, b := memory.NewInMemoryStore(), memory.NewInMemoryStore()
	p := audit.NewPublisher([]audit.Store{a, b}, audit.WithClock(func() time.Time { return now }))

	err := p.Emit(context.Background(), audit.Event{BatchID: "b1", Action: audit.ActionSubmit, State: "Acknowledged"})
	require.NoError(t, err)

	for _, s := range []*memory.InMemoryStore{a, b} {
		events, err := s.ListByBatch(context.Background(), "b1")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.NotEmpty(t, events[0].ID)
		assert.Equal(t, now, events[0].Timestamp)
	}
}

func TestPublisher_FailingSinkDoesNotStopOthers(t *testing.T) {
	bad := &failingStore{}
	good := memory.NewInMemoryStore()
	p := audit.NewPublisher([]audit.Store{bad, good})

	err := p.Emit(context.Background(), audit.Event{BatchID: "b2"})
	assert.Error(t, err)
	assert.Equal(t, 1, bad.calls)

	events, _ := good.ListAll(context.Background())
	assert.Len(t, events, 1)
}

func TestWorker_DeliversAndDrainsOnShutdown(t *testing.T) {
	store := memory.NewInMemoryStore()
	w := audit.NewWorker(audit.NewPublisher([]audit.Store{store}), 8, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for i := 0; i < 3; i++ {
		require.NoError(t, w.Emit(context.Background(), audit.Event{BatchID: "b3"}))
	}
	require.Eventually(t, func() bool {
		events, _ := store.ListByBatch(context.Background(), "b3")
		return len(events) == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWorker_FullQueueDrops(t *testing.T) {
	store := memory.NewInMemoryStore()
	w := audit.NewWorker(audit.NewPublisher([]audit.Store{store}), 1, nil)

	// not running: the second event finds the queue full
	require.NoError(t, w.Emit(context.Background(), audit.Event{BatchID: "b4"}))
	require.NoError(t, w.Emit(context.Background(), audit.Event{BatchID: "b4"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = w.Run(ctx)

	events, _ := store.ListByBatch(context.Background(), "b4")
	assert.Len(t, events, 1)
}
