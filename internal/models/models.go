package models

import (
	"time"

	"github.com/google/uuid"
)

type ItemKind string

const (
	ItemKindFlight ItemKind = "FLIGHT"
	ItemKindHotel  ItemKind = "HOTEL"
)

func (k ItemKind) Valid() bool {
	return k == ItemKindFlight || k == ItemKindHotel
}

// InventoryItem — бронируемая единица (рейс или отель) с ёмкостью.
// Version растёт на каждое изменение available.
type InventoryItem struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Kind          ItemKind  `gorm:"type:text;not null"`
	ItemCode      string    `gorm:"type:text;not null"`
	TotalCapacity int32     `gorm:"not null"`
	Available     int32     `gorm:"not null"`
	Version       int64     `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"not null;default:now();index"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (InventoryItem) TableName() string {
	return "inventory_items"
}

func (i *InventoryItem) CanReserve(qty int32) bool {
	return qty > 0 && i.Available >= qty
}

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING_PAYMENT"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingExpired   BookingStatus = "EXPIRED"
)

func (s BookingStatus) Terminal() bool {
	return s == BookingConfirmed || s == BookingCancelled || s == BookingExpired
}

type Booking struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID     `gorm:"type:uuid;not null;index"`
	ItemID         uuid.UUID     `gorm:"type:uuid;not null;index"`
	Quantity       int32         `gorm:"not null"`
	Status         BookingStatus `gorm:"type:text;not null;default:'PENDING_PAYMENT'"`
	ExpiresAt      *time.Time    `gorm:"type:timestamptz"` // только пока PENDING_PAYMENT
	IdempotencyKey string        `gorm:"type:varchar(80);not null"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Booking) TableName() string {
	return "bookings"
}

type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// Payment — запись об исходе оплаты, не больше одной на бронь.
type Payment struct {
	ID          uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	BookingID   uuid.UUID     `gorm:"type:uuid;not null"`
	Status      PaymentStatus `gorm:"type:text;not null"`
	ProviderRef string        `gorm:"type:text"`
	Reason      string        `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (Payment) TableName() string {
	return "payments"
}
