package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"poolScope/internal/metrics"
)

const (
	headerRequestID  = "X-Request-ID"
	contextRequestID = "request_id"
)

// RequestID reuses the caller's X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(contextRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.LatencyBucket.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

// ErrorHandler renders the last handler error as {code, message}.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		appErr := classify(c.Errors.Last().Err)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("code", string(appErr.Code)),
			zap.String("request_id", c.GetString(contextRequestID)),
		}
		if appErr.HTTPStatus >= 500 {
			logger.Error("request failed", append(fields, zap.Error(appErr))...)
		} else {
			logger.Warn(appErr.Message, fields...)
		}

		c.JSON(appErr.HTTPStatus, appErr)
	}
}
