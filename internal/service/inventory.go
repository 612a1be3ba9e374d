package service

import (
	"context"

	"booking-service/internal/models"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Availability struct {
	ItemID    uuid.UUID
	Available int32
}

type ListItemsFilter struct {
	Kind     *models.ItemKind
	Page     int // с нуля
	PageSize int
}

type CreateItemInput struct {
	Kind          models.ItemKind
	ItemCode      string
	TotalCapacity int32
}

type InventoryService interface {
	GetAvailability(ctx context.Context, itemID uuid.UUID) (*Availability, error)
	ListItems(ctx context.Context, f ListItemsFilter) ([]models.InventoryItem, int64, error)
	CreateItem(ctx context.Context, in CreateItemInput) (*models.InventoryItem, error)
}
