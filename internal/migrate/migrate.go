package migrate

import (
	"context"

	"booking-service/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MigrateOptions struct {
	CreateExtensions       bool // pgcrypto для gen_random_uuid()
	CreateChecks           bool // CHECK-constraint'ы
	CreateIndexes          bool // индексы и UNIQUE
	CreateFKsViaSQL        bool // FK через Exec после AutoMigrate
	CreateUpdatedAtTrigger bool // триггеры updated_at
}

func DefaultMigrateOptions() MigrateOptions {
	return MigrateOptions{
		CreateExtensions:       true,
		CreateChecks:           true,
		CreateIndexes:          true,
		CreateFKsViaSQL:        true,
		CreateUpdatedAtTrigger: true,
	}
}

type step struct {
	name string
	sql  string
}

func MigrateBookingDB(ctx context.Context, db *gorm.DB, log *zap.Logger, opt MigrateOptions) error {
	log.Info("Начало миграции базы бронирований")
	db = db.WithContext(ctx)

	if opt.CreateExtensions {
		log.Info("Создание расширений PostgreSQL")
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
			log.Error("pgcrypto error", zap.Error(err))
			return err
		}
	}

	log.Info("Создание таблиц: inventory_items, bookings, payments")
	if err := db.AutoMigrate(&models.InventoryItem{}, &models.Booking{}, &models.Payment{}); err != nil {
		log.Error("AutoMigrate error", zap.Error(err))
		return err
	}
	log.Info("Таблицы созданы")

	if opt.CreateUpdatedAtTrigger {
		log.Info("Создание триггеров updated_at")
		if err := db.Exec(`
CREATE OR REPLACE FUNCTION set_updated_at() RETURNS trigger AS $$
BEGIN NEW.updated_at = now(); RETURN NEW; END; $$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_inventory_items_updated ON inventory_items;
CREATE TRIGGER trg_inventory_items_updated BEFORE UPDATE ON inventory_items
FOR EACH ROW EXECUTE FUNCTION set_updated_at();

DROP TRIGGER IF EXISTS trg_bookings_updated ON bookings;
CREATE TRIGGER trg_bookings_updated BEFORE UPDATE ON bookings
FOR EACH ROW EXECUTE FUNCTION set_updated_at();
`).Error; err != nil {
			log.Error("triggers error", zap.Error(err))
			return err
		}
		log.Info("Триггеры созданы")
	}

	if opt.CreateChecks {
		log.Info("Создание CHECK-ограничений")
		if err := execSteps(db, log, []step{
			{"chk inventory_items.capacity", `
ALTER TABLE inventory_items
	DROP CONSTRAINT IF EXISTS chk_inventory_items_capacity,
	ADD CONSTRAINT chk_inventory_items_capacity
	CHECK (total_capacity >= 0 AND available >= 0 AND available <= total_capacity);`},
			{"chk inventory_items.kind", `
ALTER TABLE inventory_items
	DROP CONSTRAINT IF EXISTS chk_inventory_items_kind_allowed,
	ADD CONSTRAINT chk_inventory_items_kind_allowed
	CHECK (kind IN ('FLIGHT','HOTEL'));`},
			{"chk bookings.qty", `
ALTER TABLE bookings
	DROP CONSTRAINT IF EXISTS chk_bookings_quantity_gt_zero,
	ADD CONSTRAINT chk_bookings_quantity_gt_zero
	CHECK (quantity >= 1);`},
			{"chk bookings.status", `
ALTER TABLE bookings
	DROP CONSTRAINT IF EXISTS chk_bookings_status_allowed,
	ADD CONSTRAINT chk_bookings_status_allowed
	CHECK (status IN ('PENDING_PAYMENT','CONFIRMED','CANCELLED','EXPIRED'));`},
			{"chk payments.status", `
ALTER TABLE payments
	DROP CONSTRAINT IF EXISTS chk_payments_status_allowed,
	ADD CONSTRAINT chk_payments_status_allowed
	CHECK (status IN ('SUCCEEDED','FAILED'));`},
		}); err != nil {
			return err
		}
		log.Info("CHECK-и созданы")
	}

	if opt.CreateIndexes {
		log.Info("Создание индексов и уникальностей")
		if err := execSteps(db, log, []step{
			// Идемпотентность: один ключ — одна бронь
			{"ux bookings.idempotency_key", `
CREATE UNIQUE INDEX IF NOT EXISTS ux_bookings_idempotency_key
ON bookings (idempotency_key);`},
			{"ux inventory_items kind_code", `
CREATE UNIQUE INDEX IF NOT EXISTS ux_inventory_items_kind_code
ON inventory_items (kind, item_code);`},
			// Для выборки просроченных PENDING по возрастанию expires_at
			{"ix bookings status_expires", `
CREATE INDEX IF NOT EXISTS ix_bookings_status_expires_at
ON bookings (status, expires_at);`},
			{"ux payments.booking_id", `
CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_booking_id
ON payments (booking_id);`},
		}); err != nil {
			return err
		}
		log.Info("Индексы созданы")
	}

	if opt.CreateFKsViaSQL {
		log.Info("Создание внешних ключей")
		if err := execSteps(db, log, []step{
			{"fk bookings.item_id", `
ALTER TABLE bookings
  DROP CONSTRAINT IF EXISTS fk_bookings_item,
  ADD CONSTRAINT fk_bookings_item
    FOREIGN KEY (item_id) REFERENCES inventory_items(id) ON DELETE RESTRICT;`},
			{"fk payments.booking_id", `
ALTER TABLE payments
  DROP CONSTRAINT IF EXISTS fk_payments_booking,
  ADD CONSTRAINT fk_payments_booking
    FOREIGN KEY (booking_id) REFERENCES bookings(id) ON DELETE CASCADE;`},
		}); err != nil {
			return err
		}
		log.Info("Внешние ключи созданы")
	}

	log.Info("Миграция базы бронирований успешно завершена")
	return nil
}

func execSteps(db *gorm.DB, log *zap.Logger, steps []step) error {
	for _, s := range steps {
		if err := db.Exec(s.sql).Error; err != nil {
			log.Error(s.name, zap.Error(err))
			return err
		}
	}
	return nil
}
