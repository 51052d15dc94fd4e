package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the relay state of an outbox record. Transitions only move
// NEW -> SENT or NEW -> ERR; terminal rows are never touched again.
type Status string

const (
	StatusNew  Status = "NEW"
	StatusSent Status = "SENT"
	StatusErr  Status = "ERR"
)

// Record is one captured domain event, persisted in the same transaction
// as the business change that raised it.
type Record struct {
	ID            uuid.UUID
	Seq           int64
	TenantID      string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       json.RawMessage
	RoutingKey    string
	RoutingConfig json.RawMessage
	Status        Status
	RetryCount    int
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// Event is what an aggregate raises in memory. The capture session turns
// events into Records at commit time.
type Event struct {
	EventType     string
	Payload       json.RawMessage
	RoutingKey    string
	RoutingConfig json.RawMessage
}

// EventSource is implemented by aggregates that buffer domain events.
// CollectEvents drains the buffer: each event is returned exactly once,
// in raise order.
type EventSource interface {
	AggregateType() string
	AggregateID() string
	CollectEvents() []Event
}
