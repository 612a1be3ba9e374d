package service

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type BookingEventType string

const (
	EventBookingCreated   BookingEventType = "booking.created"
	EventBookingConfirmed BookingEventType = "booking.confirmed"
	EventBookingCancelled BookingEventType = "booking.cancelled"
	EventBookingExpired   BookingEventType = "booking.expired"
)

type BookingEvent struct {
	Type       BookingEventType `json:"type"`
	BookingID  uuid.UUID        `json:"booking_id"`
	UserID     uuid.UUID        `json:"user_id"`
	ItemID     uuid.UUID        `json:"item_id"`
	Quantity   int32            `json:"quantity"`
	Status     string           `json:"status"`
	Reason     string           `json:"reason,omitempty"`
	ExpiresAt  *time.Time       `json:"expires_at,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// EventBus — nil отключает публикацию.
type EventBus interface {
	PublishBookingEvent(ctx context.Context, e BookingEvent) error
}

// AvailabilityCache — кэш остатков; nil отключает кэширование.
type AvailabilityCache interface {
	GetAvailability(ctx context.Context, itemID uuid.UUID) (int32, bool, error)
	SetAvailability(ctx context.Context, itemID uuid.UUID, available int32) error
	InvalidateAvailability(ctx context.Context, itemID uuid.UUID) error
}
