package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Store is the audit sink. Append-only; Recent returns the newest events
// first.
type Store interface {
	Append(ctx context.Context, event Event) error
	Recent(ctx context.Context, n int) ([]Event, error)
}

// Publisher captures structured audit events. Audit failures are logged and
// swallowed: the trail is operational visibility, never a reason to block a
// delivery.
type Publisher struct {
	store  Store
	logger *slog.Logger
}

func NewPublisher(store Store, logger *slog.Logger) *Publisher {
	return &Publisher{store: store, logger: logger}
}

func (p *Publisher) Emit(ctx context.Context, event Event) {
	if p == nil {
		return
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := p.store.Append(ctx, event); err != nil {
		p.logger.Error("audit append failed", "type", event.Type, "err", err)
	}
}
