// Package delivery wraps the send-to-requester primitive with the daily
// quota check. It is the only path a code takes to a buyer.
package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"codegate/internal/audit"
	"codegate/internal/platform/metrics"
	"codegate/internal/quota"
)

// Result of a delivery attempt.
type Result int

const (
	// Delivered: the code was sent and counted.
	Delivered Result = iota
	// QuotaExceeded: the requester got a refusal notice instead; nothing was
	// counted.
	QuotaExceeded
)

// Sender is the chat transport's send primitive. Fire-and-forget: failures
// are logged, not retried.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Gate delivers codes subject to the quota tracker.
type Gate struct {
	sender  Sender
	tracker *quota.Tracker
	audit   *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewGate(sender Sender, tracker *quota.Tracker, auditPub *audit.Publisher, m *metrics.Metrics, logger *slog.Logger) *Gate {
	return &Gate{
		sender:  sender,
		tracker: tracker,
		audit:   auditPub,
		metrics: m,
		logger:  logger,
	}
}

// Deliver sends code to the chat if it is under today's limit, recording the
// delivery on success. Over quota, the chat gets a refusal notice and the
// tracker is left untouched. The returned error reflects quota-store
// failures only; send failures are logged and do not change the outcome.
func (g *Gate) Deliver(ctx context.Context, chatID int64, code string) (Result, error) {
	ok, err := g.tracker.CanDeliver(ctx, chatID)
	if err != nil {
		return QuotaExceeded, fmt.Errorf("quota check: %w", err)
	}
	if !ok {
		if err := g.sender.Send(ctx, chatID, g.quotaText()); err != nil {
			g.logger.Error("quota notice send failed", "chat_id", chatID, "err", err)
		}
		g.audit.Emit(ctx, audit.Event{Type: audit.EventQuotaExceeded, ChatID: chatID})
		g.metrics.IncQuotaRejected()
		return QuotaExceeded, nil
	}

	if err := g.sender.Send(ctx, chatID, deliveryText(code)); err != nil {
		g.logger.Error("code send failed", "chat_id", chatID, "err", err)
	}
	if err := g.tracker.RecordDelivery(ctx, chatID); err != nil {
		return Delivered, fmt.Errorf("record delivery: %w", err)
	}
	g.audit.Emit(ctx, audit.Event{Type: audit.EventDelivered, ChatID: chatID})
	g.metrics.IncDelivered()
	return Delivered, nil
}

func deliveryText(code string) string {
	return fmt.Sprintf("Your Steam login code: %s\nDo not share this code with anyone.", code)
}

func (g *Gate) quotaText() string {
	return fmt.Sprintf("You have reached the daily limit (%d) for code deliveries. Please wait until tomorrow or contact the seller.", g.tracker.Limit())
}
