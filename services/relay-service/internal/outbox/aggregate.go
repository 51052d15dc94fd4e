package outbox

// EventBuffer is a ready-made EventSource for embedding in aggregates:
// the aggregate calls Raise when it mutates, the capture session drains
// the buffer at commit.
type EventBuffer struct {
	aggregateType string
	aggregateID   string
	events        []Event
}

func NewEventBuffer(aggregateType, aggregateID string) *EventBuffer {
	return &EventBuffer{aggregateType: aggregateType, aggregateID: aggregateID}
}

func (b *EventBuffer) Raise(evt Event) {
	b.events = append(b.events, evt)
}

func (b *EventBuffer) AggregateType() string { return b.aggregateType }

func (b *EventBuffer) AggregateID() string { return b.aggregateID }

// CollectEvents returns the buffered events in raise order and clears
// the buffer.
func (b *EventBuffer) CollectEvents() []Event {
	out := b.events
	b.events = nil
	return out
}
