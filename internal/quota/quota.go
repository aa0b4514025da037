// Package quota enforces the per-requester daily delivery cap. One record
// per chat; the stored date rolls the count back to zero lazily when a new
// UTC day begins.
package quota

import (
	"context"
	"fmt"
	"time"
)

// Record is a chat's delivery count for one calendar date.
type Record struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Store persists quota records.
type Store interface {
	Get(ctx context.Context, chatID int64) (Record, bool, error)
	Set(ctx context.Context, chatID int64, rec Record) error
}

// Tracker answers and records delivery quota questions.
type Tracker struct {
	store Store
	limit int
	now   func() time.Time
}

type Option func(*Tracker)

// WithNow injects the clock. Tests pin the date with this.
func WithNow(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(store Store, limit int, opts ...Option) *Tracker {
	t := &Tracker{store: store, limit: limit, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// today is the UTC calendar date; the day boundary is UTC regardless of
// where the service or the requester is.
func (t *Tracker) today() string {
	return t.now().UTC().Format("2006-01-02")
}

// CanDeliver reports whether the chat is under today's limit. A record from
// a previous date counts as zero.
func (t *Tracker) CanDeliver(ctx context.Context, chatID int64) (bool, error) {
	rec, found, err := t.store.Get(ctx, chatID)
	if err != nil {
		return false, fmt.Errorf("fetch quota record: %w", err)
	}
	if !found || rec.Date != t.today() {
		return true, nil
	}
	return rec.Count < t.limit, nil
}

// RecordDelivery counts one successful delivery for the chat, resetting the
// record first if its date is stale.
func (t *Tracker) RecordDelivery(ctx context.Context, chatID int64) error {
	today := t.today()
	rec, found, err := t.store.Get(ctx, chatID)
	if err != nil {
		return fmt.Errorf("fetch quota record: %w", err)
	}
	if !found || rec.Date != today {
		rec = Record{Date: today}
	}
	rec.Count++
	if err := t.store.Set(ctx, chatID, rec); err != nil {
		return fmt.Errorf("persist quota record: %w", err)
	}
	return nil
}

// Limit returns the configured daily cap.
func (t *Tracker) Limit() int {
	return t.limit
}
