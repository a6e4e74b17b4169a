package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitStampsIDAndTime(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	pub := NewPublisher(WithClock(func() time.Time { return now }))

	pub.Emit(context.Background(), Event{Type: TypeLoanOpened, Subject: "alice"})

	event := <-pub.Inbox()
	assert.NotEqual(t, event.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.Equal(t, now, event.OccurredAt)
	assert.Equal(t, TypeLoanOpened, event.Type)
}

func TestEmitNeverBlocksWhenFull(t *testing.T) {
	pub := NewPublisher(WithBuffer(1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		pub.Emit(context.Background(), Event{Type: TypeLoanOpened})
		pub.Emit(context.Background(), Event{Type: TypeLoanRepaid})
		pub.Emit(context.Background(), Event{Type: TypeLoanLiquidated})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full buffer")
	}

	// Only the first event fit.
	event := <-pub.Inbox()
	assert.Equal(t, TypeLoanOpened, event.Type)
	assert.Empty(t, pub.Inbox())
}

func TestWorkerPersistsAndStops(t *testing.T) {
	store := NewMemoryStore()
	pub := NewPublisher()
	worker := NewWorker(store, pub.Inbox())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = worker.Run(context.Background())
	}()

	pub.Emit(context.Background(), Event{Type: TypeLoanOpened, Subject: "alice"})
	pub.Emit(context.Background(), Event{Type: TypeLoanRepaid, Subject: "alice"})
	pub.Close()
	wg.Wait()

	got, err := store.ListBySubject(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, TypeLoanOpened, got[0].Type)
	assert.Equal(t, TypeLoanRepaid, got[1].Type)
}

func TestWorkerDrainsOnCancel(t *testing.T) {
	store := NewMemoryStore()
	pub := NewPublisher()

	// Buffer events before the worker starts, then cancel immediately.
	for i := 0; i < 5; i++ {
		pub.Emit(context.Background(), Event{Type: TypeLoanOpened, Subject: "alice"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	worker := NewWorker(store, pub.Inbox())
	err := worker.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, store.Len(), "buffered events are drained before exit")
}

type failingSink struct {
	calls int
}

func (f *failingSink) Name() string { return "failing" }

func (f *failingSink) Publish(context.Context, Event) error {
	f.calls++
	return errors.New("sink down")
}

func TestWorkerSinkFailureDoesNotStopProcessing(t *testing.T) {
	store := NewMemoryStore()
	pub := NewPublisher()
	sink := &failingSink{}
	worker := NewWorker(store, pub.Inbox(), WithSinks(sink))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = worker.Run(context.Background())
	}()

	pub.Emit(context.Background(), Event{Type: TypeLossCovered, Subject: "fund"})
	pub.Emit(context.Background(), Event{Type: TypeLossCovered, Subject: "fund"})
	pub.Close()
	wg.Wait()

	assert.Equal(t, 2, sink.calls)
	assert.Equal(t, 2, store.Len(), "persistence is independent of sink health")
}
