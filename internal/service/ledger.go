package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"booking-service/internal/metrics"
	"booking-service/internal/models"
	"booking-service/internal/repository"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultMaxAttempts = 10

// Ledger — остатки позиций. Любая запись идёт через read-check-write
// с проверкой версии строки.
type Ledger struct {
	repo        *repository.Repository
	cache       AvailabilityCache
	maxAttempts int
	log         *zap.Logger
}

func NewLedger(repo *repository.Repository, cache AvailabilityCache, maxAttempts int, log *zap.Logger) *Ledger {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Ledger{repo: repo, cache: cache, maxAttempts: maxAttempts, log: log}
}

func (l *Ledger) Reserve(ctx context.Context, itemID uuid.UUID, qty int32) (*models.InventoryItem, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	var item *models.InventoryItem
	err := l.retry(ctx, "reserve", func() error {
		var err error
		item, err = l.reserveIn(ctx, l.repo, itemID, qty)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.invalidate(ctx, itemID)
	return item, nil
}

func (l *Ledger) Release(ctx context.Context, itemID uuid.UUID, qty int32) (*models.InventoryItem, error) {
	if qty < 0 {
		return nil, ErrInvalidQuantity
	}
	var item *models.InventoryItem
	err := l.retry(ctx, "release", func() error {
		var err error
		item, err = l.releaseIn(ctx, l.repo, itemID, qty)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.invalidate(ctx, itemID)
	return item, nil
}

// reserveIn/releaseIn — одна попытка в рамках транзакции вызывающего;
// повтор на ErrWriteConflict делает l.retry вокруг всей транзакции.
func (l *Ledger) reserveIn(ctx context.Context, tx *repository.Repository, itemID uuid.UUID, qty int32) (*models.InventoryItem, error) {
	return reserveOnce(ctx, tx.Inventories, itemID, qty)
}

func (l *Ledger) releaseIn(ctx context.Context, tx *repository.Repository, itemID uuid.UUID, qty int32) (*models.InventoryItem, error) {
	return releaseOnce(ctx, tx.Inventories, itemID, qty)
}

func (l *Ledger) retry(ctx context.Context, operation string, op func() error) error {
	return withRetry(ctx, l.maxAttempts, operation, op)
}

func (l *Ledger) invalidate(ctx context.Context, itemID uuid.UUID) {
	invalidateAvailability(ctx, l.cache, l.log, itemID)
}

// reserveOnce — одна попытка списания. Вызывается и внутри транзакции брони.
func reserveOnce(ctx context.Context, inv repository.InventoryRepo, itemID uuid.UUID, qty int32) (*models.InventoryItem, error) {
	item, err := inv.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrItemNotFound
	}
	if !item.CanReserve(qty) {
		return nil, ErrInsufficientStock
	}

	next := item.Available - qty
	ok, err := inv.CompareAndSetAvailable(ctx, item.ID, item.Version, next)
	if err != nil {
		return nil, fmt.Errorf("reserve %s: %w", itemID, err)
	}
	if !ok {
		return nil, ErrWriteConflict
	}
	item.Available = next
	item.Version++
	return item, nil
}

// releaseOnce возвращает qty, но не выше total_capacity: повторный возврат не раздувает остаток.
func releaseOnce(ctx context.Context, inv repository.InventoryRepo, itemID uuid.UUID, qty int32) (*models.InventoryItem, error) {
	item, err := inv.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrItemNotFound
	}

	next := min(item.TotalCapacity, item.Available+qty)
	if next == item.Available {
		return item, nil
	}
	ok, err := inv.CompareAndSetAvailable(ctx, item.ID, item.Version, next)
	if err != nil {
		return nil, fmt.Errorf("release %s: %w", itemID, err)
	}
	if !ok {
		return nil, ErrWriteConflict
	}
	item.Available = next
	item.Version++
	return item, nil
}

func newRetryBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0
	return b
}

// withRetry повторяет op только на ErrWriteConflict, не более maxAttempts раз.
func withRetry(ctx context.Context, maxAttempts int, operation string, op func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	b := backoff.WithContext(backoff.WithMaxRetries(newRetryBackOff(), uint64(maxAttempts-1)), ctx)

	err := backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrWriteConflict) {
			metrics.TrackWriteConflict(operation)
			return err
		}
		return backoff.Permanent(err)
	}, b)

	if errors.Is(err, ErrWriteConflict) {
		return fmt.Errorf("%s: %w", operation, ErrConcurrencyExhausted)
	}
	return err
}

func invalidateAvailability(ctx context.Context, cache AvailabilityCache, log *zap.Logger, itemID uuid.UUID) {
	if cache == nil {
		return
	}
	if err := cache.InvalidateAvailability(context.WithoutCancel(ctx), itemID); err != nil {
		log.Warn("Не удалось сбросить кэш остатка", zap.String("item_id", itemID.String()), zap.Error(err))
	}
}
