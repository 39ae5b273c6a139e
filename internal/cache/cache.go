package cache

import (
	"context"
	"time"

	"github.com/sawmapp/claspsync/internal/message"
)

const (
	// Retention is how long cached messages are kept before a sweep
	// deletes them.
	Retention = 30 * 24 * time.Hour

	// DefaultQueryLimit bounds QueryByRoom when callers pass no limit.
	DefaultQueryLimit = 100
)

// Store is the durable per-device message cache. It exists for offline
// continuity of message history only; presence and typing state never
// touch it.
type Store interface {
	Put(ctx context.Context, room string, msg message.Message) error
	QueryByRoom(ctx context.Context, room string, limit int) ([]message.Message, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) error
	Close() error
}
