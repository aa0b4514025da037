// Package audit records what the service did with each code: delivered,
// refused over quota, escalated, or swept. The trail exists for the operator
// ("why did buyer X not get a code yesterday") and is exposed on the ops
// endpoint.
package audit

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventRegistered    EventType = "request_registered"
	EventDelivered     EventType = "code_delivered"
	EventQuotaExceeded EventType = "quota_exceeded"
	EventEscalated     EventType = "code_escalated"
	EventExpired       EventType = "requests_expired"
)

// Event is one audit record. ChatID is zero for events with no single
// requester (escalations, sweeps).
type Event struct {
	ID        uuid.UUID `json:"id"`
	Type      EventType `json:"type"`
	ChatID    int64     `json:"chat_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
