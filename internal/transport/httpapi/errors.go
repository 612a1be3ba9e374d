package httpapi

import (
	"errors"
	"net/http"

	"booking-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func toHTTPError(err error) (int, BaseError) {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, NewUnauthorizedError("unauthorized")
	case errors.Is(err, service.ErrItemNotFound),
		errors.Is(err, service.ErrBookingNotFound):
		return http.StatusNotFound, NewNotFoundError(err.Error())
	case errors.Is(err, service.ErrInsufficientStock):
		return http.StatusConflict, BaseError{Code: "insufficient_stock", Message: err.Error()}
	case errors.Is(err, service.ErrAlreadyFinalized):
		return http.StatusConflict, BaseError{Code: "already_finalized", Message: err.Error()}
	case errors.Is(err, service.ErrIdempotencyKeyConflict):
		return http.StatusConflict, BaseError{Code: "idempotency_key_conflict", Message: err.Error()}
	case errors.Is(err, service.ErrItemCodeExists):
		return http.StatusConflict, BaseError{Code: "conflict", Message: err.Error()}
	case errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrIdempotencyKeyRequired),
		errors.Is(err, service.ErrIdempotencyKeyTooLong),
		errors.Is(err, service.ErrInvalidKind),
		errors.Is(err, service.ErrInvalidItemCode),
		errors.Is(err, service.ErrInvalidCapacity),
		errors.Is(err, service.ErrInvalidOutcome):
		return http.StatusBadRequest, NewValidationError(err.Error(), nil)
	case errors.Is(err, service.ErrConcurrencyExhausted):
		return http.StatusServiceUnavailable, BaseError{Code: "retry_later", Message: "too much contention, retry later"}
	default:
		return http.StatusInternalServerError, NewInternalError("")
	}
}

func writeError(c *gin.Context, log *zap.Logger, err error) {
	code, body := toHTTPError(err)
	if code >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	if code == http.StatusServiceUnavailable {
		c.Header("Retry-After", "1")
	}
	c.JSON(code, body)
}
