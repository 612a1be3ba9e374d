package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"booking-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Transition описывает условный переход статуса брони.
type Transition struct {
	From models.BookingStatus
	To   models.BookingStatus
	// ExpiredBefore дополнительно требует expires_at < значения (для reclaim).
	ExpiredBefore *time.Time
}

type BookingRepo interface {
	Create(ctx context.Context, b *models.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Booking, error)

	// ListExpiredPending — до limit броней PENDING_PAYMENT с expires_at < now, старые первыми.
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Booking, error)

	// Transition меняет статус только если текущий равен t.From; expires_at очищается.
	Transition(ctx context.Context, id uuid.UUID, t Transition) (bool, error)
}

type bookingRepo struct{ db *gorm.DB }

func NewBookingRepo(db *gorm.DB) BookingRepo { return &bookingRepo{db: db} }

func (r *bookingRepo) Create(ctx context.Context, b *models.Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(b).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create booking: %w", err)
	}
	return nil
}

func (r *bookingRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return &b, nil
}

func (r *bookingRepo) GetByIdempotencyKey(ctx context.Context, key string) (*models.Booking, error) {
	var b models.Booking
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get booking by idempotency key: %w", err)
	}
	return &b, nil
}

func (r *bookingRepo) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	var list []models.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", models.BookingPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list expired bookings: %w", err)
	}
	return list, nil
}

func (r *bookingRepo) Transition(ctx context.Context, id uuid.UUID, t Transition) (bool, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND status = ?", id, t.From)
	if t.ExpiredBefore != nil {
		q = q.Where("expires_at < ?", *t.ExpiredBefore)
	}
	tx := q.Updates(map[string]any{
		"status":     t.To,
		"expires_at": nil,
	})
	return tx.RowsAffected > 0, tx.Error
}
