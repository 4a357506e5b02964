package api

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"opsdash/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger 请求日志中间件，5xx 记为 error，4xx 记为 warn
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}

		log := logger.WithContext(c.Request.Context())
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("HTTP Request", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("HTTP Request", fields...)
		default:
			log.Info("HTTP Request", fields...)
		}
	}
}

// CORSConfig 跨域配置，来源为空时允许任意来源
type CORSConfig struct {
	AllowOrigins []string
	AllowHeaders []string
}

// CORSConfigFromEnv 读取 CORS_ALLOW_ORIGINS / CORS_ALLOW_HEADERS
func CORSConfigFromEnv() CORSConfig {
	return CORSConfig{
		AllowOrigins: getEnvList("CORS_ALLOW_ORIGINS"),
		AllowHeaders: getEnvList("CORS_ALLOW_HEADERS"),
	}
}

// CORS 跨域中间件
func CORS(cfg CORSConfig) gin.HandlerFunc {
	headers := cfg.AllowHeaders
	if len(headers) == 0 {
		headers = []string{"Content-Type", "Accept", "Origin", "X-Request-ID"}
	}
	allowHeaders := strings.Join(headers, ", ")

	return func(c *gin.Context) {
		h := c.Writer.Header()
		origin := c.GetHeader("Origin")

		switch {
		case len(cfg.AllowOrigins) == 0:
			h.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(cfg.AllowOrigins, origin):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		}

		h.Set("Access-Control-Allow-Headers", allowHeaders)
		h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Expose-Headers", "X-Request-ID, Content-Disposition, Retry-After")
		h.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
