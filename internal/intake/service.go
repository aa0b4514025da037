// Package intake turns the two-step buyer conversation into a registered
// pending request: an approved order id first, then the account name the
// login code will arrive for.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"codegate/internal/audit"
	"codegate/internal/orders"
	"codegate/internal/pending"
	"codegate/pkg/platform/sentinel"
)

const (
	replyGreeting    = "Welcome! Send the order id (Order ID) you received from the store."
	replyRejected    = "Order id not found or not yet approved. Please contact the seller."
	replyConfirmed   = "Order approved. Now send the Steam account name (username) you are trying to log in with."
	replyAutomatic   = "Thanks. The code is forwarded automatically when it arrives from the mailbox."
	replyNonePending = "No pending requests."
)

var (
	orderIDPattern   = regexp.MustCompile(`^\d+$`)
	shortCodePattern = regexp.MustCompile(`^\d{4,8}$`)
)

// Sender is the chat transport's send primitive.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Service handles inbound conversational messages.
type Service struct {
	orders   *orders.Set
	registry pending.Registry
	sender   Sender
	ownerID  int64
	audit    *audit.Publisher
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(set *orders.Set, registry pending.Registry, sender Sender, ownerID int64, auditPub *audit.Publisher, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		orders:   set,
		registry: registry,
		sender:   sender,
		ownerID:  ownerID,
		audit:    auditPub,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleMessage processes one inbound message. Branch order matters: an
// all-digits message is always treated as an order submission, even while an
// account name is expected, so a buyer can restart intake by sending a new
// order id.
func (s *Service) HandleMessage(ctx context.Context, chatID, senderID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if strings.HasPrefix(text, "/start") {
		s.reply(ctx, chatID, replyGreeting)
		return nil
	}

	if s.ownerID != 0 && senderID == s.ownerID && strings.HasPrefix(text, "/status") {
		return s.handleStatus(ctx, chatID)
	}

	if orderIDPattern.MatchString(text) {
		return s.handleOrderSubmission(ctx, chatID, text)
	}

	req, err := s.registry.GetIntake(ctx, chatID)
	switch {
	case err == nil:
		return s.handleAccountCapture(ctx, chatID, req, text)
	case !errors.Is(err, sentinel.ErrNotFound):
		return fmt.Errorf("look up intake entry: %w", err)
	}

	if shortCodePattern.MatchString(text) {
		s.reply(ctx, chatID, replyAutomatic)
	}
	return nil
}

func (s *Service) handleOrderSubmission(ctx context.Context, chatID int64, orderID string) error {
	if !s.orders.Contains(orderID) {
		s.reply(ctx, chatID, replyRejected)
		return nil
	}
	err := s.registry.PutIntake(ctx, pending.Request{
		OrderID:   orderID,
		ChatID:    chatID,
		Stage:     pending.StageAwaitingAccount,
		CreatedAt: s.now(),
	})
	if err != nil {
		return fmt.Errorf("register order submission: %w", err)
	}
	s.reply(ctx, chatID, replyConfirmed)
	return nil
}

func (s *Service) handleAccountCapture(ctx context.Context, chatID int64, req pending.Request, account string) error {
	completed := pending.Request{
		OrderID:   req.OrderID,
		ChatID:    chatID,
		Account:   account,
		Stage:     pending.StageAwaitingCode,
		CreatedAt: s.now(),
	}
	if err := s.registry.Complete(ctx, pending.Key(account), completed); err != nil {
		return fmt.Errorf("complete intake: %w", err)
	}
	s.audit.Emit(ctx, audit.Event{
		Type:   audit.EventRegistered,
		ChatID: chatID,
		Detail: fmt.Sprintf("order %s, account %s", req.OrderID, account),
	})
	s.reply(ctx, chatID, fmt.Sprintf(
		"Request registered for order %s with account name %s.\nHang tight: the login code will be forwarded as soon as it reaches the linked mailbox.",
		req.OrderID, account,
	))
	return nil
}

func (s *Service) handleStatus(ctx context.Context, chatID int64) error {
	entries, err := s.registry.List(ctx)
	if err != nil {
		return fmt.Errorf("list pending entries: %w", err)
	}
	if len(entries) == 0 {
		s.reply(ctx, chatID, replyNonePending)
		return nil
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s => order:%s chat:%d", e.Key, e.Request.OrderID, e.Request.ChatID))
	}
	s.reply(ctx, chatID, "Pending requests:\n"+strings.Join(lines, "\n"))
	return nil
}

func (s *Service) reply(ctx context.Context, chatID int64, text string) {
	if err := s.sender.Send(ctx, chatID, text); err != nil {
		s.logger.Error("reply send failed", "chat_id", chatID, "err", err)
	}
}
