// Package matcher triages mailbox messages: throw away account-security
// noise, pull out the one-time code, find whose request it belongs to, and
// deliver or escalate.
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"codegate/internal/audit"
	"codegate/internal/delivery"
	"codegate/internal/pending"
	"codegate/internal/platform/metrics"
)

// excerptRunes bounds the body excerpt attached to escalations.
const excerptRunes = 400

var codePattern = regexp.MustCompile(`\b\d{4,8}\b`)

// Sender is the chat transport's send primitive, used here for owner
// escalations.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Service matches incoming code-bearing mail bodies to pending requests.
type Service struct {
	registry pending.Registry
	gate     *delivery.Gate
	sender   Sender
	ownerID  int64
	// fallback delivers an unmatched code to the single pending requester
	// when exactly one request is outstanding.
	fallback bool
	audit    *audit.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func New(registry pending.Registry, gate *delivery.Gate, sender Sender, ownerID int64, fallback bool, auditPub *audit.Publisher, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		registry: registry,
		gate:     gate,
		sender:   sender,
		ownerID:  ownerID,
		fallback: fallback,
		audit:    auditPub,
		metrics:  m,
		logger:   logger,
	}
}

// IsRecoveryNotice reports whether the body looks like an email/password
// change notice rather than a login code. Those are discarded outright: the
// codes they carry must never be forwarded.
func IsRecoveryNotice(body string) bool {
	lower := strings.ToLower(body)
	if !strings.Contains(lower, "change") {
		return false
	}
	return strings.Contains(lower, "email") ||
		strings.Contains(lower, "password") ||
		strings.Contains(lower, "reset")
}

// ExtractCode returns the first standalone 4-8 digit run in the body.
func ExtractCode(body string) (string, bool) {
	code := codePattern.FindString(body)
	return code, code != ""
}

// HandleBody processes one extracted mail body end to end.
func (s *Service) HandleBody(ctx context.Context, body string) error {
	s.metrics.IncMailSeen()

	if IsRecoveryNotice(body) {
		s.logger.Info("ignored account-security notice")
		s.metrics.IncMailIgnored()
		return nil
	}
	code, ok := ExtractCode(body)
	if !ok {
		s.metrics.IncMailIgnored()
		return nil
	}
	s.logger.Info("found code", "code", code)

	entries, err := s.registry.List(ctx)
	if err != nil {
		return fmt.Errorf("list pending entries: %w", err)
	}

	// Direct match: first entry, in insertion order, whose account name
	// appears in the body.
	lower := strings.ToLower(body)
	for _, entry := range entries {
		if strings.Contains(lower, entry.Key) {
			return s.deliver(ctx, entry, code)
		}
	}

	// Single-outstanding inference.
	if s.fallback && len(entries) == 1 {
		return s.deliver(ctx, entries[0], code)
	}

	return s.escalate(ctx, code, body)
}

func (s *Service) deliver(ctx context.Context, entry pending.Entry, code string) error {
	result, err := s.gate.Deliver(ctx, entry.Request.ChatID, code)
	if err != nil {
		return fmt.Errorf("deliver to chat %d: %w", entry.Request.ChatID, err)
	}
	if result != delivery.Delivered {
		// Over quota: the entry stays pending for a future code.
		return nil
	}
	if err := s.registry.Remove(ctx, entry.Key); err != nil {
		return fmt.Errorf("remove delivered entry %q: %w", entry.Key, err)
	}
	return nil
}

func (s *Service) escalate(ctx context.Context, code, body string) error {
	s.logger.Info("no match for code", "code", code, "pending", "zero or multiple")
	s.audit.Emit(ctx, audit.Event{Type: audit.EventEscalated, Detail: "code " + code})
	s.metrics.IncEscalated()
	if s.ownerID == 0 {
		return nil
	}
	text := fmt.Sprintf(
		"A code (%s) arrived but could not be matched to any pending request. Message text:\n%s",
		code, excerpt(body),
	)
	if err := s.sender.Send(ctx, s.ownerID, text); err != nil {
		s.logger.Error("escalation send failed", "err", err)
	}
	return nil
}

func excerpt(body string) string {
	runes := []rune(body)
	if len(runes) <= excerptRunes {
		return body
	}
	return string(runes[:excerptRunes])
}
