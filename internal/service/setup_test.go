package service

import (
	"context"
	"sync"
	"testing"

	"booking-service/internal/migrate"
	"booking-service/internal/models"
	"booking-service/internal/repository"
	"booking-service/pkg/testutil"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func setupRepo(t *testing.T) *repository.Repository {
	t.Helper()
	db := testutil.SetupTestPostgres(t)
	if err := migrate.MigrateBookingDB(context.Background(), db, zap.NewNop(), migrate.DefaultMigrateOptions()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repository.New(db)
}

func seedItem(t *testing.T, repo *repository.Repository, capacity int32) *models.InventoryItem {
	t.Helper()
	item := &models.InventoryItem{
		Kind:          models.ItemKindFlight,
		ItemCode:      "FL-" + uuid.NewString()[:8],
		TotalCapacity: capacity,
		Available:     capacity,
	}
	if err := repo.Inventories.Create(context.Background(), item); err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return item
}

func mustItem(t *testing.T, repo *repository.Repository, id uuid.UUID) *models.InventoryItem {
	t.Helper()
	item, err := repo.Inventories.Get(context.Background(), id)
	if err != nil || item == nil {
		t.Fatalf("get item: %+v, %v", item, err)
	}
	return item
}

type recordingBus struct {
	mu     sync.Mutex
	events []BookingEvent
}

func (b *recordingBus) PublishBookingEvent(_ context.Context, e BookingEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *recordingBus) types() []BookingEventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BookingEventType, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

type memCache struct {
	mu          sync.Mutex
	values      map[uuid.UUID]int32
	invalidated int
}

func newMemCache() *memCache { return &memCache{values: map[uuid.UUID]int32{}} }

func (c *memCache) GetAvailability(_ context.Context, id uuid.UUID) (int32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[id]
	return v, ok, nil
}

func (c *memCache) SetAvailability(_ context.Context, id uuid.UUID, available int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[id] = available
	return nil
}

func (c *memCache) InvalidateAvailability(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, id)
	c.invalidated++
	return nil
}
