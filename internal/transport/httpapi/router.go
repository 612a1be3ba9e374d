package httpapi

import (
	"booking-service/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Services struct {
	Bookings  BookingAPI
	Outcomes  OutcomeAPI
	Inventory service.InventoryService
}

func Router(svc Services, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log))

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", HeaderUserID, HeaderIdempotencyKey},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	bookingHandler := NewBookingHandler(svc.Bookings, log)
	inventoryHandler := NewInventoryHandler(svc.Inventory, log)
	paymentHandler := NewPaymentHandler(svc.Outcomes, log)

	api := r.Group("/api/v1")
	{
		api.GET("/inventories", inventoryHandler.List)
		api.POST("/inventories", inventoryHandler.Create)
		api.GET("/inventories/:id/availability", inventoryHandler.Availability)

		// коллбек от платёжного провайдера, без пользователя
		api.POST("/payments/callback", paymentHandler.Callback)

		bookings := api.Group("/bookings", UserRequired())
		bookings.POST("", bookingHandler.Create)
		bookings.GET("/:id", bookingHandler.Get)
		bookings.POST("/:id/cancel", bookingHandler.Cancel)
	}

	return r
}
