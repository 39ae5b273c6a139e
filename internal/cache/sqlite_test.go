package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sawmapp/claspsync/internal/message"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	store, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPutAndQueryByRoom(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		msg := message.Message{
			ID:        fmt.Sprintf("m%d", i),
			ClientID:  "c1",
			Sender:    "aya",
			Content:   fmt.Sprintf("msg %d", i),
			Timestamp: int64(100 + i),
		}
		if err := store.Put(ctx, "sawm/mesa/az", msg); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	msgs, err := store.QueryByRoom(ctx, "sawm/mesa/az", 0)
	if err != nil {
		t.Fatalf("QueryByRoom() error = %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("len = %d, want 5", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp < msgs[i-1].Timestamp {
			t.Fatalf("messages not sorted ascending: %d before %d", msgs[i-1].Timestamp, msgs[i].Timestamp)
		}
	}
}

func TestQueryByRoom_LimitKeepsNewest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		msg := message.Message{ID: fmt.Sprintf("m%d", i), Timestamp: int64(i + 1)}
		if err := store.Put(ctx, "room", msg); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	msgs, err := store.QueryByRoom(ctx, "room", 3)
	if err != nil {
		t.Fatalf("QueryByRoom() error = %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	if msgs[0].Timestamp != 8 || msgs[2].Timestamp != 10 {
		t.Fatalf("expected the newest 3 ascending, got %v", msgs)
	}
}

func TestQueryByRoom_ScopedToRoom(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "room-a", message.Message{ID: "a1", Timestamp: 1}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Put(ctx, "room-b", message.Message{ID: "b1", Timestamp: 2}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	msgs, err := store.QueryByRoom(ctx, "room-a", 0)
	if err != nil {
		t.Fatalf("QueryByRoom() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "a1" {
		t.Fatalf("expected only room-a messages, got %v", msgs)
	}
}

func TestPut_UpsertsByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "room", message.Message{ID: "m1", Content: "one", Timestamp: 1}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Put(ctx, "room", message.Message{ID: "m1", Content: "one", Timestamp: 1}); err != nil {
		t.Fatalf("Put() duplicate error = %v", err)
	}

	msgs, err := store.QueryByRoom(ctx, "room", 0)
	if err != nil {
		t.Fatalf("QueryByRoom() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("len = %d, want 1 (duplicate ids collapse)", len(msgs))
	}
}

func TestDeleteOlderThan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	cutoff := time.UnixMilli(500)

	if err := store.Put(ctx, "room", message.Message{ID: "old", Timestamp: 100}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Put(ctx, "room", message.Message{ID: "new", Timestamp: 900}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if err := store.DeleteOlderThan(ctx, cutoff); err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}

	msgs, err := store.QueryByRoom(ctx, "room", 0)
	if err != nil {
		t.Fatalf("QueryByRoom() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "new" {
		t.Fatalf("expected only the new message to survive, got %v", msgs)
	}
}
