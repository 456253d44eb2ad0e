package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIDKey = "request_id"

// RequestID ensures every request carries a unique identifier. A
// client-supplied X-Request-ID is honored when sane; otherwise a fresh
// UUID is generated. The ID is echoed in the response headers and
// stored in the Gin context for correlation.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if n := len(id); n < 1 || n > 64 {
			id = uuid.NewString()
		}

		c.Header("X-Request-ID", id)
		c.Set(RequestIDKey, id)
		c.Next()
	}
}

// GetRequestID returns the request ID set by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	id, _ := c.Value(RequestIDKey).(string)
	return id
}
