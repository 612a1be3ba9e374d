package service

import "errors"

var (
	ErrUnauthorized = errors.New("unauthorized")

	ErrItemNotFound    = errors.New("inventory item not found")
	ErrBookingNotFound = errors.New("booking not found")

	ErrInvalidQuantity        = errors.New("quantity must be > 0")
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	ErrIdempotencyKeyTooLong  = errors.New("idempotency key is too long")
	ErrIdempotencyKeyConflict = errors.New("idempotency key is used by another user")
	ErrInvalidKind            = errors.New("kind must be FLIGHT or HOTEL")
	ErrInvalidItemCode        = errors.New("item code is required")
	ErrInvalidCapacity        = errors.New("capacity must be >= 0")
	ErrInvalidOutcome         = errors.New("outcome must be CONFIRMED or FAILED")
	ErrItemCodeExists         = errors.New("item code already exists for kind")

	ErrInsufficientStock = errors.New("insufficient stock")
	ErrAlreadyFinalized  = errors.New("booking already finalized")

	// ErrWriteConflict — версия строки изменилась между чтением и записью.
	// Наружу не выходит: попытка повторяется.
	ErrWriteConflict = errors.New("inventory write conflict")
	// ErrConcurrencyExhausted — все попытки проиграли гонку, клиенту стоит повторить позже.
	ErrConcurrencyExhausted = errors.New("too much contention, retry later")
)
