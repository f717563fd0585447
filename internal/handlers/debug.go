package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-gateway/internal/models"
	"messaging-gateway/internal/tasks"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, authMiddleware gin.HandlerFunc, dispatcher *tasks.Dispatcher, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/notify-test", authMiddleware, func(c *gin.Context) {
		if dispatcher == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "dispatcher not configured"})
			return
		}
		userID := userIDFromContext(c)
		if userID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing user id"})
			return
		}
		dispatcher.NotifyUser(userID, "Test Notification", "notification pipeline check", models.NotificationKindSystem)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "request_id": requestIDFromContext(c)})
	})
}
