package httpapi

import (
	"net/http"
	"strings"
	"time"

	"booking-service/internal/metrics"
	"booking-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	HeaderUserID         = "X-User-ID"
	HeaderIdempotencyKey = "Idempotency-Key"

	CtxUserID = "user_id"
)

// UserRequired берёт id пользователя, проставленный gateway после проверки токена.
func UserRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, NewUnauthorizedError("missing "+HeaderUserID+" header"))
			return
		}
		uid, err := uuid.Parse(raw)
		if err != nil || uid == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, NewUnauthorizedError("invalid "+HeaderUserID+" header"))
			return
		}

		c.Set(CtxUserID, uid)
		c.Request = c.Request.WithContext(service.WithUserID(c.Request.Context(), uid))
		c.Next()
	}
}

func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		took := time.Since(started)
		metrics.TrackHTTP(c.Request.Method, route, c.Writer.Status(), took)

		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", took),
		)
	}
}
