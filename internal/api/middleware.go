package api

import (
	"fmt"
	"strings"
	"time"

	"subhub/internal/metrics"
	"subhub/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader propagates the request identifier
	RequestIDHeader = "X-Request-ID"

	// userIDKey is the gin.Context key holding the authenticated user ID
	userIDKey = "user_id"
)

// RequestIDMiddleware ensures every request carries an X-Request-ID,
// reusing an inbound one when present.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// MetricsMiddleware records request counts and latencies. The path label
// uses the matched route template so raw URLs do not inflate cardinality.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}
		method := c.Request.Method
		status := fmt.Sprintf("%d", c.Writer.Status())

		metrics.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// AuthMiddleware gates a route group on a valid bearer token and stores
// the session user ID in the context.
func AuthMiddleware(authService *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			abortWithError(c, services.E(services.KindAuthRequired, "missing bearer token"))
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			abortWithError(c, services.E(services.KindAuthRequired, "invalid or expired token"))
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

// sessionUserID returns the authenticated user ID set by AuthMiddleware
func sessionUserID(c *gin.Context) uint {
	return c.GetUint(userIDKey)
}
