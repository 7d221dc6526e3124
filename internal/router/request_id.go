package router

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDContextKey = "request_id"
	requestIDHeaderKey  = "X-Request-ID"
)

// RequestIDMiddleware tags every request with an ID, reusing a well-formed one sent by the
// client, and echoes it back.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeaderKey)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(RequestIDContextKey, id)
		c.Header(requestIDHeaderKey, id)
		c.Next()
	}
}
