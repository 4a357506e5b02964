package api

import (
	"opsdash/internal/metrics"
	"opsdash/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 设置并返回 Gin 路由
func SetupRouter(container *AppContainer) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(RequestLogger())
	router.Use(CORS(CORSConfigFromEnv()))
	router.Use(metrics.PrometheusMiddleware())

	// 探针与指标
	router.GET("/health", HealthCheck())
	router.GET("/ready", ReadinessCheck(container.Tokens, func() string {
		return container.Lifecycle.State().String()
	}))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	RegisterRoutes(router, container, container.InitHandlers())
	return router
}
