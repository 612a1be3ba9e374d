package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"booking-service/internal/models"
	"booking-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type inventoryService struct {
	repo  *repository.Repository
	cache AvailabilityCache
	log   *zap.Logger
}

func NewInventoryService(repo *repository.Repository, cache AvailabilityCache, log *zap.Logger) InventoryService {
	return &inventoryService{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

func (s *inventoryService) GetAvailability(ctx context.Context, itemID uuid.UUID) (*Availability, error) {
	if s.cache != nil {
		avail, ok, err := s.cache.GetAvailability(ctx, itemID)
		if err != nil {
			// кэш не критичен, идём в базу
			s.log.Warn("Ошибка чтения кэша остатка", zap.String("item_id", itemID.String()), zap.Error(err))
		} else if ok {
			return &Availability{ItemID: itemID, Available: avail}, nil
		}
	}

	item, err := s.repo.Inventories.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrItemNotFound
	}

	if s.cache != nil {
		if err := s.cache.SetAvailability(ctx, itemID, item.Available); err != nil {
			s.log.Warn("Ошибка записи кэша остатка", zap.String("item_id", itemID.String()), zap.Error(err))
		}
	}
	return &Availability{ItemID: itemID, Available: item.Available}, nil
}

func (s *inventoryService) ListItems(ctx context.Context, f ListItemsFilter) ([]models.InventoryItem, int64, error) {
	if f.Kind != nil && !f.Kind.Valid() {
		return nil, 0, ErrInvalidKind
	}
	if f.Page < 0 {
		f.Page = 0
	}
	switch {
	case f.PageSize <= 0:
		f.PageSize = defaultPageSize
	case f.PageSize > maxPageSize:
		f.PageSize = maxPageSize
	}

	return s.repo.Inventories.List(ctx, repository.InventoryListFilter{
		Kind:   f.Kind,
		Limit:  f.PageSize,
		Offset: f.Page * f.PageSize,
	})
}

// CreateItem при занятом (kind, code) возвращает существующую позицию вместе с ErrItemCodeExists.
func (s *inventoryService) CreateItem(ctx context.Context, in CreateItemInput) (*models.InventoryItem, error) {
	kind := models.ItemKind(strings.ToUpper(strings.TrimSpace(string(in.Kind))))
	code := strings.TrimSpace(in.ItemCode)
	switch {
	case !kind.Valid():
		return nil, ErrInvalidKind
	case code == "":
		return nil, ErrInvalidItemCode
	case in.TotalCapacity < 0:
		return nil, ErrInvalidCapacity
	}

	item := &models.InventoryItem{
		Kind:          kind,
		ItemCode:      code,
		TotalCapacity: in.TotalCapacity,
		Available:     in.TotalCapacity,
	}
	if err := s.repo.Inventories.Create(ctx, item); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			existing, gerr := s.repo.Inventories.GetByKindAndCode(ctx, kind, code)
			if gerr != nil || existing == nil {
				return nil, ErrItemCodeExists
			}
			return existing, fmt.Errorf("%w: %s", ErrItemCodeExists, existing.ID)
		}
		return nil, err
	}

	s.log.Info("Позиция инвентаря создана",
		zap.String("item_id", item.ID.String()),
		zap.String("kind", string(item.Kind)),
		zap.String("item_code", item.ItemCode),
		zap.Int32("capacity", item.TotalCapacity),
	)
	return item, nil
}
