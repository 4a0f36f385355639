package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"groupchat-client/internal/middleware"
	"groupchat-client/internal/observability"
	"groupchat-client/internal/store"
	"groupchat-client/internal/telemetry"
)

// NewRouter assembles the ops surface: health, prometheus metrics, group
// state snapshots behind the static bearer token, and optional debug routes.
func NewRouter(registry *store.Registry, emitter *telemetry.LifecycleEmitter, opsToken string, debugRoutes bool) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(observability.HTTPMetricsMiddleware())

	ops := NewOpsHandler(registry)
	router.GET("/healthz", ops.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	opsAuth := middleware.OpsAuth(opsToken)
	router.GET("/groups/:group_id/state", opsAuth, ops.GroupState)
	router.GET("/groups/:group_id/messages", opsAuth, ops.GroupMessages)
	RegisterDebugRoutes(router, registry, emitter, debugRoutes)

	return router
}
