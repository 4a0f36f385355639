package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"groupchat-client/internal/store"
	"groupchat-client/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, registry *store.Registry, emitter *telemetry.LifecycleEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/telemetry-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "telemetry emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "telemetry_test", c.Query("group_id"), "", 0, "")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/debug/groups/:group_id/clear", func(c *gin.Context) {
		registry.ClearGroupData(c.Param("group_id"))
		c.JSON(http.StatusOK, gin.H{"status": "cleared"})
	})
}
