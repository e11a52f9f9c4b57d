package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-engine/internal/middleware"
)

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(middleware.RequestIDKey, requestID)
	return requestID
}

// callerID is the authenticated account id. Routes using it sit behind AuthMiddleware.
func callerID(c *gin.Context) string {
	return c.GetString(middleware.AccountIDKey)
}
