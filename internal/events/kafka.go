package events

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var _ Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher publishes envelopes to a single topic through an async
// writer. Publish enqueues onto an in-memory inbox; a background goroutine
// drains it, so request handlers never wait on the broker.
type KafkaPublisher struct {
	w       *kafka.Writer
	lg      *zap.Logger
	inbox   chan kafka.Message
	closeCh chan struct{}
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
// Call Start before publishing and Close on shutdown.
func NewKafkaPublisher(brokers []string, topic string, buf int, lg *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		lg:      lg,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

// Start launches the drain goroutine. On context cancellation remaining
// messages are flushed before the writer closes.
func (p *KafkaPublisher) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				for {
					select {
					case m := <-p.inbox:
						p.write(m)
					default:
						_ = p.w.Close()
						return
					}
				}
			case m := <-p.inbox:
				p.write(m)
			}
		}
	}()
}

func (p *KafkaPublisher) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.lg.Error("publish event",
			zap.ByteString("key", m.Key),
			zap.Error(err),
		)
	}
}

// Publish enqueues an envelope, keyed by its correlation ID so all events of
// one order land on the same partition. Drops the event with a log line when
// the inbox is full rather than blocking the caller.
func (p *KafkaPublisher) Publish(_ context.Context, e Envelope) {
	value, err := json.Marshal(e)
	if err != nil {
		p.lg.Error("marshal event", zap.String("event_type", e.EventType), zap.Error(err))
		return
	}
	m := kafka.Message{
		Key:   []byte(e.CorrelationID),
		Value: value,
		Time:  e.OccurredAt,
	}
	select {
	case p.inbox <- m:
	default:
		p.lg.Warn("event inbox full, dropping event",
			zap.String("event_type", e.EventType),
			zap.String("correlation_id", e.CorrelationID),
		)
	}
}

// WaitClosed blocks until the drain goroutine has flushed and exited.
func (p *KafkaPublisher) WaitClosed() {
	<-p.closeCh
}
