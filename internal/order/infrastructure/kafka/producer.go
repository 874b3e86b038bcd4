package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Writer wraps kafka-go's writer with the acks/balancing settings the
// outbox relay expects: full ISR acks so a dispatched event is never lost
// by the broker.
type Writer struct {
	*kafka.Writer
}

func NewWriter(brokers []string) *Writer {
	return &Writer{
		Writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (w *Writer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return w.Writer.WriteMessages(ctx, msgs...)
}
