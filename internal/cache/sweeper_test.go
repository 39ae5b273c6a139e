package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sawmapp/claspsync/internal/message"
)

type recordingStore struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (r *recordingStore) Put(context.Context, string, message.Message) error { return nil }
func (r *recordingStore) QueryByRoom(context.Context, string, int) ([]message.Message, error) {
	return nil, nil
}
func (r *recordingStore) Close() error { return nil }

func (r *recordingStore) DeleteOlderThan(_ context.Context, cutoff time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cutoffs = append(r.cutoffs, cutoff)
	return nil
}

func (r *recordingStore) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cutoffs)
}

func TestSweeper_SweepsImmediatelyWithRetentionCutoff(t *testing.T) {
	store := &recordingStore{}
	sweeper := NewSweeper(store, nil)
	sweeper.interval = time.Hour
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sweeper.now = func() time.Time { return now }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for store.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("expected an immediate sweep")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	store.mu.Lock()
	cutoff := store.cutoffs[0]
	store.mu.Unlock()
	if want := now.Add(-Retention); !cutoff.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", cutoff, want)
	}
}

func TestSweeper_SweepsOnInterval(t *testing.T) {
	store := &recordingStore{}
	sweeper := NewSweeper(store, nil)
	sweeper.interval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.Run(ctx)

	deadline := time.After(2 * time.Second)
	for store.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected repeated sweeps, got %d", store.count())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
