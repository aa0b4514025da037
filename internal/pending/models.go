// Package pending is the registry of open code requests. A request is
// created when a buyer submits a valid order id, completed when they name
// the account the code will arrive for, and removed when a code is
// delivered. Intake-stage entries are keyed by chat id; completed entries
// are keyed by the case-folded account name the mail body is matched
// against.
package pending

import (
	"strings"
	"time"
)

// Stage tells which half of the lifecycle a request is in.
type Stage string

const (
	// StageAwaitingAccount: order id confirmed, account name not yet given.
	StageAwaitingAccount Stage = "awaiting_account"
	// StageAwaitingCode: intake complete, waiting for the mailbox to see a
	// matching code.
	StageAwaitingCode Stage = "awaiting_code"
)

// Request is one open code request.
type Request struct {
	OrderID string `json:"order_id"`
	ChatID  int64  `json:"chat_id"`
	// Account is the raw account name as typed by the buyer. Empty while the
	// request is in StageAwaitingAccount.
	Account   string    `json:"account,omitempty"`
	Stage     Stage     `json:"stage"`
	CreatedAt time.Time `json:"created_at"`
}

// Entry pairs a completed request with its registry key.
type Entry struct {
	Key     string  `json:"key"`
	Request Request `json:"request"`
}

// Key returns the permanent registry key for an account name: its
// case-folded form. Matching against mail bodies is case-insensitive.
func Key(account string) string {
	return strings.ToLower(strings.TrimSpace(account))
}
