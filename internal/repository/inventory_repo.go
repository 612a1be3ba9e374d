package repository

import (
	"context"
	"errors"
	"fmt"

	"booking-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InventoryListFilter struct {
	Kind   *models.ItemKind
	Limit  int
	Offset int
}

type InventoryRepo interface {
	Create(ctx context.Context, item *models.InventoryItem) error
	Get(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error)
	GetByKindAndCode(ctx context.Context, kind models.ItemKind, code string) (*models.InventoryItem, error)
	List(ctx context.Context, f InventoryListFilter) ([]models.InventoryItem, int64, error)

	// CompareAndSetAvailable пишет available только если version не изменилась
	// с момента чтения. false — кто-то успел раньше.
	CompareAndSetAvailable(ctx context.Context, id uuid.UUID, expectedVersion int64, available int32) (bool, error)
}

type inventoryRepo struct{ db *gorm.DB }

func NewInventoryRepo(db *gorm.DB) InventoryRepo { return &inventoryRepo{db: db} }

func (r *inventoryRepo) Create(ctx context.Context, item *models.InventoryItem) error {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create inventory item: %w", err)
	}
	return nil
}

func (r *inventoryRepo) Get(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get inventory item: %w", err)
	}
	return &item, nil
}

func (r *inventoryRepo) GetByKindAndCode(ctx context.Context, kind models.ItemKind, code string) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).Where("kind = ? AND item_code = ?", kind, code).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get inventory item by code: %w", err)
	}
	return &item, nil
}

func (r *inventoryRepo) List(ctx context.Context, f InventoryListFilter) ([]models.InventoryItem, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.InventoryItem{})
	if f.Kind != nil {
		q = q.Where("kind = ?", *f.Kind)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var list []models.InventoryItem
	if err := q.Order("created_at DESC").Order("id").Limit(f.Limit).Offset(f.Offset).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *inventoryRepo) CompareAndSetAvailable(ctx context.Context, id uuid.UUID, expectedVersion int64, available int32) (bool, error) {
	tx := r.db.WithContext(ctx).Exec(`
UPDATE inventory_items
SET available = @avail,
    version   = version + 1
WHERE id = @id
  AND version = @ver
`, map[string]any{
		"id":    id,
		"ver":   expectedVersion,
		"avail": available,
	})
	return tx.RowsAffected > 0, tx.Error
}
