package repository

import (
	"context"
	"errors"

	"booking-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRepo interface {
	// Record сохраняет исход оплаты; повторная запись для той же брони игнорируется.
	Record(ctx context.Context, p *models.Payment) (bool, error)
	GetByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error)
}

type paymentRepo struct{ db *gorm.DB }

func NewPaymentRepo(db *gorm.DB) PaymentRepo { return &paymentRepo{db: db} }

func (r *paymentRepo) Record(ctx context.Context, p *models.Payment) (bool, error) {
	tx := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "booking_id"}},
			DoNothing: true,
		}).
		Create(p)
	return tx.RowsAffected > 0, tx.Error
}

func (r *paymentRepo) GetByBooking(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).First(&p, "booking_id = ?", bookingID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &p, err
}
