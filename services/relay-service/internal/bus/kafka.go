// Package bus adapts the projector's publish boundary to Kafka.
package bus

import (
	"context"

	"github.com/md-rashed-zaman/eventrelay/libs/kafkax"
	otelx "github.com/md-rashed-zaman/eventrelay/libs/otel"
	"github.com/md-rashed-zaman/eventrelay/services/relay-service/internal/outbox"
	"github.com/segmentio/kafka-go"
)

// Kafka publishes routed messages, topic per destination. Keys hash on the
// aggregate id so one aggregate's events stay on one partition.
type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(brokers []string) *Kafka {
	return &Kafka{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:  brokers,
			Balancer: &kafka.Hash{},
		}),
	}
}

func (k *Kafka) Publish(ctx context.Context, msgs []outbox.Message) error {
	kmsgs := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		km := kafka.Message{
			Topic: m.Destination,
			Key:   []byte(m.Key),
			Value: m.Value,
		}
		for key, val := range m.Headers {
			km.Headers = append(km.Headers, kafka.Header{Key: key, Value: []byte(val)})
		}
		// Restore the producer's trace context captured at insert time so
		// the consumer's span links back to the original business call.
		msgCtx := otelx.ContextWithTraceContext(ctx, m.Traceparent, m.Tracestate)
		km.Headers = kafkax.InjectTraceHeaders(msgCtx, km.Headers)
		kmsgs = append(kmsgs, km)
	}
	return k.writer.WriteMessages(ctx, kmsgs...)
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
