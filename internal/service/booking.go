package service

import (
	"context"
	"time"

	"booking-service/internal/models"

	"github.com/google/uuid"
)

const maxIdempotencyKeyLen = 80

type CreateBookingInput struct {
	UserID         uuid.UUID
	ItemID         uuid.UUID
	Quantity       int32
	IdempotencyKey string
}

type PaymentInfo struct {
	ProviderRef string
}

type PaymentOutcomeKind string

const (
	OutcomeConfirmed PaymentOutcomeKind = "CONFIRMED"
	OutcomeFailed    PaymentOutcomeKind = "FAILED"
)

type PaymentOutcome struct {
	BookingID   uuid.UUID
	Outcome     PaymentOutcomeKind
	ProviderRef string
	Reason      string
}

type BookingOptions struct {
	HoldDuration time.Duration
	MaxAttempts  int
}

type ReservationService interface {
	CreateBooking(ctx context.Context, in CreateBookingInput) (*models.Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	// Expire переводит просроченную PENDING_PAYMENT бронь в EXPIRED и возвращает остаток.
	// false — бронь уже не в ожидании или ещё не истекла.
	Expire(ctx context.Context, id uuid.UUID) (bool, error)
	ListExpiredPending(ctx context.Context, limit int) ([]models.Booking, error)
}

type PaymentService interface {
	Confirm(ctx context.Context, bookingID uuid.UUID, info PaymentInfo) (*models.Booking, error)
	Cancel(ctx context.Context, bookingID uuid.UUID, reason string) (*models.Booking, error)
	HandleOutcome(ctx context.Context, o PaymentOutcome) (*models.Booking, error)
}
