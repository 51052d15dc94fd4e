package kafkax

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestExtractEventMeta_HeaderFallbacks(t *testing.T) {
	msg := kafka.Message{
		Topic: "orders.events",
		Key:   []byte("o-1"),
	}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "o-1" {
		t.Fatalf("event id must fall back to the key, got %q", meta.EventID)
	}
	if meta.EventType != "orders.events" {
		t.Fatalf("event type must fall back to the topic, got %q", meta.EventType)
	}

	msg.Headers = []kafka.Header{
		{Key: HeaderEventID, Value: []byte("evt-7")},
		{Key: HeaderEventType, Value: []byte("order.created")},
		{Key: HeaderTenantID, Value: []byte("tenant-a")},
	}
	meta = ExtractEventMeta(msg)
	if meta.EventID != "evt-7" || meta.EventType != "order.created" || meta.TenantID != "tenant-a" {
		t.Fatalf("headers must win: %+v", meta)
	}
}

func TestHeaderCarrier_SetAppendsAndOverwrites(t *testing.T) {
	headers := []kafka.Header{{Key: "traceparent", Value: []byte("old")}}
	carrier := kafkaHeaderCarrier{headers: &headers}

	carrier.Set("traceparent", "new")
	carrier.Set("tracestate", "vendor=1")

	if len(headers) != 2 {
		t.Fatalf("expected 2 headers, got %d", len(headers))
	}
	if carrier.Get("traceparent") != "new" {
		t.Fatalf("existing key must be overwritten, got %q", carrier.Get("traceparent"))
	}
	if carrier.Get("tracestate") != "vendor=1" {
		t.Fatalf("new key must be appended, got %q", carrier.Get("tracestate"))
	}
}
