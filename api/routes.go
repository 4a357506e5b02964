package api

import (
	"opsdash/internal/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有 API 路由
func RegisterRoutes(router *gin.Engine, container *AppContainer, handlers *Handlers) {
	limit := middleware.RateLimitByEndpoint(container.RateLimiter)

	api := router.Group("/api")

	// 会话（无需作用域）
	registerSessionRoutes(api, handlers, limit)

	// 租户作用域内的数据接口
	scoped := api.Group("")
	scoped.Use(middleware.TenantScopeMiddleware(container.Tenant, container.Logger.Named("scope")))
	registerAlertRoutes(scoped, handlers, limit)
	registerResourceRoutes(scoped, handlers, limit)
}

// registerSessionRoutes 注册会话路由
func registerSessionRoutes(api *gin.RouterGroup, h *Handlers, limit gin.HandlerFunc) {
	sessionGroup := api.Group("/session")
	{
		sessionGroup.GET("", h.Session.Get)
		sessionGroup.POST("", limit, h.Session.Login)
		sessionGroup.DELETE("", h.Session.Logout)
		sessionGroup.POST("/restore", limit, h.Session.Restore)
	}
}

// registerAlertRoutes 注册告警路由
func registerAlertRoutes(api *gin.RouterGroup, h *Handlers, limit gin.HandlerFunc) {
	alertGroup := api.Group("/alerts")
	{
		alertGroup.GET("", h.Alerts.List)
		alertGroup.GET("/stats", h.Alerts.Stats)
		alertGroup.GET("/filters", h.Alerts.Filters)
		alertGroup.GET("/export", h.Alerts.Export)
		alertGroup.POST("/refresh", limit, h.Alerts.Refresh)
		alertGroup.POST("/validate", limit, h.Alerts.Validate)
		alertGroup.PATCH("/:id", h.Alerts.Update)
		alertGroup.POST("/:id/acknowledge", h.Alerts.Acknowledge)
		alertGroup.POST("/:id/resolve", h.Alerts.Resolve)
	}
}

// registerResourceRoutes 注册资源路由
func registerResourceRoutes(api *gin.RouterGroup, h *Handlers, limit gin.HandlerFunc) {
	resourceGroup := api.Group("/resources")
	{
		resourceGroup.GET("", h.Resources.List)
		resourceGroup.GET("/filters", h.Resources.Filters)
		resourceGroup.POST("/refresh", limit, h.Resources.Refresh)
		resourceGroup.GET("/:id", h.Resources.Get)
	}
}
