package pending

import (
	"context"
	"time"
)

// Registry stores open requests. Intake-stage entries live in their own
// keyspace (one per chat, last write wins) so completed entries never need a
// reserved key prefix.
//
// Error contract: Get returns sentinel.ErrNotFound (wrapped) when the key is
// absent; mutations return an error only when the backing persistence fails,
// in which case the in-memory state is unchanged.
type Registry interface {
	// PutIntake creates or overwrites the intake-stage entry for req.ChatID.
	PutIntake(ctx context.Context, req Request) error
	// GetIntake fetches the intake-stage entry for a chat.
	GetIntake(ctx context.Context, chatID int64) (Request, error)
	// Complete atomically deletes the chat's intake-stage entry and inserts
	// req under key. A re-completed key keeps its original listing position.
	Complete(ctx context.Context, key string, req Request) error
	// Get fetches a completed entry by key.
	Get(ctx context.Context, key string) (Request, error)
	// Remove deletes a completed entry. Removing an absent key is a no-op.
	Remove(ctx context.Context, key string) error
	// List returns all completed entries in insertion order.
	List(ctx context.Context) ([]Entry, error)
	// DeleteExpired removes entries of either stage created before cutoff and
	// reports how many were removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)
}
