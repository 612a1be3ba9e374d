package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"booking-service/internal/models"
	"booking-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BookingAPI — то, что нужно HTTP-слою от менеджера броней.
type BookingAPI interface {
	CreateBooking(ctx context.Context, in service.CreateBookingInput) (*models.Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	Cancel(ctx context.Context, bookingID uuid.UUID, reason string) (*models.Booking, error)
}

type OutcomeAPI interface {
	HandleOutcome(ctx context.Context, o service.PaymentOutcome) (*models.Booking, error)
}

type BookingHandler struct {
	bookings BookingAPI
	log      *zap.Logger
}

func NewBookingHandler(bookings BookingAPI, log *zap.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, log: log}
}

func (h *BookingHandler) Create(c *gin.Context) {
	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewValidationError("invalid request body", []FieldError{{Field: "body", Message: err.Error()}}))
		return
	}
	itemID, _ := uuid.Parse(req.ItemID)

	b, err := h.bookings.CreateBooking(c.Request.Context(), service.CreateBookingInput{
		ItemID:         itemID,
		Quantity:       req.Quantity,
		IdempotencyKey: strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey)),
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, toBookingResponse(b))
}

func (h *BookingHandler) Get(c *gin.Context) {
	b, ok := h.ownedBooking(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	var req CancelBookingRequest
	// тело необязательное
	_ = c.ShouldBindJSON(&req)

	existing, ok := h.ownedBooking(c)
	if !ok {
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "cancelled by user"
	}
	b, err := h.bookings.Cancel(c.Request.Context(), existing.ID, reason)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

// ownedBooking отдаёт 404 и на чужую бронь, чтобы не раскрывать её существование.
func (h *BookingHandler) ownedBooking(c *gin.Context) (*models.Booking, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, NewValidationError("invalid booking id", []FieldError{{Field: "id", Message: "must be uuid", Tag: "uuid"}}))
		return nil, false
	}
	b, err := h.bookings.GetBooking(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return nil, false
	}
	uid, _ := service.UserIDFromContext(c.Request.Context())
	if b.UserID != uid {
		writeError(c, h.log, service.ErrBookingNotFound)
		return nil, false
	}
	return b, true
}

type InventoryHandler struct {
	inventory service.InventoryService
	log       *zap.Logger
}

func NewInventoryHandler(inventory service.InventoryService, log *zap.Logger) *InventoryHandler {
	return &InventoryHandler{inventory: inventory, log: log}
}

func (h *InventoryHandler) List(c *gin.Context) {
	var f service.ListItemsFilter
	if raw := strings.TrimSpace(c.Query("kind")); raw != "" {
		k := models.ItemKind(strings.ToUpper(raw))
		f.Kind = &k
	}
	f.Page = queryInt(c, "page", 0)
	f.PageSize = queryInt(c, "page_size", 0)

	items, total, err := h.inventory.ListItems(c.Request.Context(), f)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	resp := ListItemsResponse{Items: make([]ItemResponse, 0, len(items)), Total: total, Page: f.Page, PageSize: f.PageSize}
	for i := range items {
		resp.Items = append(resp.Items, toItemResponse(&items[i]))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *InventoryHandler) Create(c *gin.Context) {
	var req CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewValidationError("invalid request body", []FieldError{{Field: "body", Message: err.Error()}}))
		return
	}
	item, err := h.inventory.CreateItem(c.Request.Context(), service.CreateItemInput{
		Kind:          models.ItemKind(req.Kind),
		ItemCode:      req.ItemCode,
		TotalCapacity: req.TotalCapacity,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, toItemResponse(item))
}

func (h *InventoryHandler) Availability(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, NewValidationError("invalid item id", []FieldError{{Field: "id", Message: "must be uuid", Tag: "uuid"}}))
		return
	}
	a, err := h.inventory.GetAvailability(c.Request.Context(), id)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, AvailabilityResponse{ItemID: a.ItemID.String(), Available: a.Available})
}

type PaymentHandler struct {
	outcomes OutcomeAPI
	log      *zap.Logger
}

func NewPaymentHandler(outcomes OutcomeAPI, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{outcomes: outcomes, log: log}
}

// Callback — синхронный вариант того же, что приходит в топик payment.outcomes.
func (h *PaymentHandler) Callback(c *gin.Context) {
	var req PaymentCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewValidationError("invalid request body", []FieldError{{Field: "body", Message: err.Error()}}))
		return
	}
	id, _ := uuid.Parse(req.BookingID)

	b, err := h.outcomes.HandleOutcome(c.Request.Context(), service.PaymentOutcome{
		BookingID:   id,
		Outcome:     service.PaymentOutcomeKind(strings.ToUpper(strings.TrimSpace(req.Outcome))),
		ProviderRef: req.ProviderRef,
		Reason:      req.Reason,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
