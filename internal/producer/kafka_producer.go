package producer

import (
	"context"
	"encoding/json"
	"time"

	"booking-service/internal/service"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// BookingEventProducer публикует события броней; ключ — id брони,
// чтобы события одной брони шли в одну партицию по порядку.
type BookingEventProducer struct {
	writer messageWriter
}

var _ service.EventBus = (*BookingEventProducer)(nil)

func NewBookingEventProducer(brokers []string, topic string) *BookingEventProducer {
	return &BookingEventProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (p *BookingEventProducer) PublishBookingEvent(ctx context.Context, e service.BookingEvent) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.BookingID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(e.Type)},
		},
	})
}

func (p *BookingEventProducer) Close() error {
	return p.writer.Close()
}
