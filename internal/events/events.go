// Package events publishes order lifecycle events.
package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/nursery-kart/internal/domain/order"
	"github.com/xenking/nursery-kart/internal/wire"
)

var (
	_ order.Publisher = (*Producer)(nil)
	_ order.Publisher = Nop{}
)

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

// Publish implements order.Publisher.
func (Nop) Publish(context.Context, order.Event) error { return nil }

// messageWriter is the subset of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes order events to a Kafka topic, keyed by order id so events
// of one order stay ordered within a partition.
type Producer struct {
	writer messageWriter
}

// NewProducer creates a Producer for topic on brokers.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

// Publish implements order.Publisher.
func (p *Producer) Publish(ctx context.Context, e order.Event) error {
	var enc jx.Encoder
	Encode(&enc, e)

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Order.ID),
		Value: enc.Bytes(),
		Time:  e.At,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}); err != nil {
		return errors.Wrap(err, "write message")
	}
	return nil
}

// Close flushes pending messages.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Encode writes the event payload.
func Encode(enc *jx.Encoder, e order.Event) {
	enc.ObjStart()
	enc.FieldStart("type")
	enc.Str(string(e.Type))
	enc.FieldStart("at")
	enc.Str(e.At.UTC().Format(time.RFC3339Nano))
	if e.Previous != "" {
		enc.FieldStart("previousStatus")
		enc.Str(string(e.Previous))
	}
	enc.FieldStart("order")
	wire.EncodeOrder(enc, &e.Order)
	enc.ObjEnd()
}
