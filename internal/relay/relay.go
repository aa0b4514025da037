// Package relay serializes the two event sources, inbound chat messages and
// polled mail bodies, into one queue consumed by a single goroutine, so no
// two events ever interleave their registry and quota mutations.
package relay

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"codegate/internal/audit"
	"codegate/internal/intake"
	"codegate/internal/matcher"
	"codegate/internal/pending"
	"codegate/internal/platform/metrics"
)

const queueDepth = 256

type eventKind int

const (
	chatEvent eventKind = iota
	mailEvent
)

type event struct {
	kind     eventKind
	chatID   int64
	senderID int64
	text     string
	body     string
}

// Service is the core-processing loop.
type Service struct {
	events   chan event
	intake   *intake.Service
	matcher  *matcher.Service
	registry pending.Registry
	// ttl expires stale pending requests; 0 keeps the historical
	// keep-forever behavior.
	ttl     time.Duration
	audit   *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(intakeSvc *intake.Service, matcherSvc *matcher.Service, registry pending.Registry, ttl time.Duration, auditPub *audit.Publisher, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		events:   make(chan event, queueDepth),
		intake:   intakeSvc,
		matcher:  matcherSvc,
		registry: registry,
		ttl:      ttl,
		audit:    auditPub,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleChatMessage enqueues one inbound conversational message. Called from
// the chat transport's goroutine.
func (s *Service) HandleChatMessage(chatID, senderID int64, text string) {
	s.events <- event{kind: chatEvent, chatID: chatID, senderID: senderID, text: text}
}

// HandleMailBody enqueues one extracted mail body. Called from the mail
// poller's goroutine.
func (s *Service) HandleMailBody(body string) {
	s.events <- event{kind: mailEvent, body: body}
}

// Run consumes the queue until ctx is cancelled. Every per-event error is
// logged and swallowed: one malformed message never halts the loop.
func (s *Service) Run(ctx context.Context) error {
	var sweep <-chan time.Time
	if s.ttl > 0 {
		ticker := time.NewTicker(s.ttl / 4)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.events:
			s.dispatch(ctx, ev)
		case <-sweep:
			s.expire(ctx)
		}
	}
}

func (s *Service) dispatch(ctx context.Context, ev event) {
	switch ev.kind {
	case chatEvent:
		if err := s.intake.HandleMessage(ctx, ev.chatID, ev.senderID, ev.text); err != nil {
			s.logger.Error("chat message handling failed", "chat_id", ev.chatID, "err", err)
		}
	case mailEvent:
		if err := s.matcher.HandleBody(ctx, ev.body); err != nil {
			s.logger.Error("mail body handling failed", "err", err)
		}
	}
	s.observePending(ctx)
}

func (s *Service) expire(ctx context.Context) {
	deleted, err := s.registry.DeleteExpired(ctx, s.now().Add(-s.ttl))
	if err != nil {
		s.logger.Error("expiry sweep failed", "err", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("expired stale pending requests", "count", deleted)
		s.audit.Emit(ctx, audit.Event{Type: audit.EventExpired, Detail: strconv.Itoa(deleted)})
		s.observePending(ctx)
	}
}

func (s *Service) observePending(ctx context.Context) {
	entries, err := s.registry.List(ctx)
	if err != nil {
		return
	}
	s.metrics.SetPending(len(entries))
}
