package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/service"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type PaymentOutcomeMessage struct {
	BookingID   string `json:"booking_id"`
	Outcome     string `json:"outcome"`
	ProviderRef string `json:"provider_ref"`
	Reason      string `json:"reason"`
}

type OutcomeHandler interface {
	HandleOutcome(ctx context.Context, o service.PaymentOutcome) (*models.Booking, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const maxPause = 30 * time.Second

// KafkaPaymentConsumer читает исходы оплаты и применяет их к броням.
// Смещение коммитится только после применения или окончательного отказа (битое сообщение,
// бизнес-ошибка). Временную ошибку сообщение повторяет на месте, пока не пройдёт;
// при остановке оно остаётся незакоммиченным и придёт снова.
type KafkaPaymentConsumer struct {
	reader     messageReader
	handler    OutcomeHandler
	log        *zap.Logger
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

func NewKafkaPaymentConsumer(brokers []string, groupID, topic string, handler OutcomeHandler, log *zap.Logger) *KafkaPaymentConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		Topic:             topic,
		MinBytes:          10e3,
		MaxBytes:          10e6,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	})
	return &KafkaPaymentConsumer{
		reader:     r,
		handler:    handler,
		log:        log,
		maxRetries: 5,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxInterval = maxPause
			b.MaxElapsedTime = 0
			return b
		},
	}
}

func (c *KafkaPaymentConsumer) Run(ctx context.Context) error {
	c.log.Info("kafka payment consumer started")
	fetchPause := c.newBackOff()
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			c.log.Error("fetch message", zap.Error(err))
			if !c.wait(ctx, fetchPause) {
				return nil
			}
			continue
		}
		fetchPause.Reset()

		if !c.apply(ctx, m) {
			// не коммитим: после перезапуска сообщение будет прочитано снова
			c.log.Info("payment outcome left uncommitted on shutdown", zap.Int64("offset", m.Offset))
			return nil
		}

		if err := c.reader.CommitMessages(context.WithoutCancel(ctx), m); err != nil {
			c.log.Error("commit message", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// apply повторяет обработку сообщения, пока она не завершится окончательно.
// false — ctx отменён раньше.
func (c *KafkaPaymentConsumer) apply(ctx context.Context, m kafka.Message) bool {
	pause := c.newBackOff()
	for {
		err := c.process(ctx, m)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.log.Error("payment outcome not applied, retrying",
			zap.Int64("offset", m.Offset),
			zap.Error(err),
		)
		if !c.wait(ctx, pause) {
			return false
		}
	}
}

func (c *KafkaPaymentConsumer) wait(ctx context.Context, b backoff.BackOff) bool {
	d := b.NextBackOff()
	if d == backoff.Stop {
		d = maxPause
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// process возвращает ошибку только когда исход не применён и его стоит повторить.
func (c *KafkaPaymentConsumer) process(ctx context.Context, m kafka.Message) error {
	var msg PaymentOutcomeMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		c.log.Error("unmarshal payment outcome", zap.ByteString("value", m.Value), zap.Error(err))
		return nil
	}
	outcome, err := msg.toOutcome()
	if err != nil {
		c.log.Warn("invalid payment outcome", zap.Any("msg", msg), zap.Error(err))
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	err = backoff.Retry(func() error {
		_, err := c.handler.HandleOutcome(ctx, outcome)
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)

	switch {
	case err == nil:
		c.log.Info("payment outcome applied",
			zap.String("booking_id", msg.BookingID),
			zap.String("outcome", msg.Outcome),
		)
		return nil
	case errors.Is(err, service.ErrAlreadyFinalized):
		c.log.Warn("payment outcome for finalized booking",
			zap.String("booking_id", msg.BookingID),
			zap.String("provider_ref", msg.ProviderRef),
		)
		return nil
	case !isTransient(err):
		c.log.Error("payment outcome rejected",
			zap.String("booking_id", msg.BookingID),
			zap.String("outcome", msg.Outcome),
			zap.Error(err),
		)
		return nil
	default:
		return err
	}
}

func (m PaymentOutcomeMessage) toOutcome() (service.PaymentOutcome, error) {
	id, err := uuid.Parse(strings.TrimSpace(m.BookingID))
	if err != nil {
		return service.PaymentOutcome{}, err
	}
	return service.PaymentOutcome{
		BookingID:   id,
		Outcome:     service.PaymentOutcomeKind(strings.ToUpper(strings.TrimSpace(m.Outcome))),
		ProviderRef: m.ProviderRef,
		Reason:      m.Reason,
	}, nil
}

// isTransient — всё, кроме бизнес-ошибок, имеет смысл повторить.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, service.ErrBookingNotFound),
		errors.Is(err, service.ErrAlreadyFinalized),
		errors.Is(err, service.ErrInvalidOutcome):
		return false
	}
	return true
}

func (c *KafkaPaymentConsumer) Close() error { return c.reader.Close() }
