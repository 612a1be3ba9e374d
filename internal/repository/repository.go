package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrDuplicateKey — нарушение уникального индекса (ключ идемпотентности, код позиции).
var ErrDuplicateKey = errors.New("duplicate key")

const pgUniqueViolation = "23505"

type Repository struct {
	DB          *gorm.DB
	Inventories InventoryRepo
	Bookings    BookingRepo
	Payments    PaymentRepo
}

func buildRepository(db *gorm.DB) *Repository {
	return &Repository{
		DB:          db,
		Inventories: NewInventoryRepo(db),
		Bookings:    NewBookingRepo(db),
		Payments:    NewPaymentRepo(db),
	}
}

func New(db *gorm.DB) *Repository { return buildRepository(db) }

// Глобальная транзакция на весь набор репо
func (r *Repository) WithTx(ctx context.Context, fn func(tx *Repository) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(buildRepository(tx))
	})
}

// IsUniqueViolation понимает и переведённую gorm ошибку, и сырой pgconn.PgError.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, ErrDuplicateKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
