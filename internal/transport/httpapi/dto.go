package httpapi

import (
	"time"

	"booking-service/internal/models"
)

// BaseError универсальный корневой формат ошибки
// Code — машинно-ориентированный код (snake_case)
// Message — краткое человеко-читаемое описание
// Fields — для валидационных ошибок (имя поля + текст)
type BaseError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details string       `json:"details,omitempty"`
	Fields  []FieldError `json:"fields,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Tag     string `json:"tag,omitempty"`
}

func NewValidationError(msg string, fields []FieldError) BaseError {
	return BaseError{Code: "validation_error", Message: msg, Fields: fields}
}
func NewUnauthorizedError(msg string) BaseError {
	return BaseError{Code: "unauthorized", Message: msg}
}
func NewNotFoundError(msg string) BaseError {
	return BaseError{Code: "not_found", Message: msg}
}
func NewInternalError(details string) BaseError {
	return BaseError{Code: "internal_error", Message: "internal server error", Details: details}
}

type CreateBookingRequest struct {
	ItemID   string `json:"item_id" binding:"required,uuid"`
	Quantity int32  `json:"quantity" binding:"required"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

type BookingResponse struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	ItemID    string     `json:"item_id"`
	Quantity  int32      `json:"quantity"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func toBookingResponse(b *models.Booking) BookingResponse {
	return BookingResponse{
		ID:        b.ID.String(),
		UserID:    b.UserID.String(),
		ItemID:    b.ItemID.String(),
		Quantity:  b.Quantity,
		Status:    string(b.Status),
		ExpiresAt: b.ExpiresAt,
		CreatedAt: b.CreatedAt,
	}
}

type CreateItemRequest struct {
	Kind          string `json:"kind" binding:"required"`
	ItemCode      string `json:"item_code" binding:"required"`
	TotalCapacity int32  `json:"total_capacity" binding:"gte=0"`
}

type ItemResponse struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	ItemCode      string    `json:"item_code"`
	TotalCapacity int32     `json:"total_capacity"`
	Available     int32     `json:"available"`
	CreatedAt     time.Time `json:"created_at"`
}

func toItemResponse(i *models.InventoryItem) ItemResponse {
	return ItemResponse{
		ID:            i.ID.String(),
		Kind:          string(i.Kind),
		ItemCode:      i.ItemCode,
		TotalCapacity: i.TotalCapacity,
		Available:     i.Available,
		CreatedAt:     i.CreatedAt,
	}
}

type ListItemsResponse struct {
	Items    []ItemResponse `json:"items"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

type AvailabilityResponse struct {
	ItemID    string `json:"item_id"`
	Available int32  `json:"available"`
}

type PaymentCallbackRequest struct {
	BookingID   string `json:"booking_id" binding:"required,uuid"`
	Outcome     string `json:"outcome" binding:"required"`
	ProviderRef string `json:"provider_ref"`
	Reason      string `json:"reason"`
}
