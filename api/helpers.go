package api

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"opsdash/internal/tokenstore"

	"github.com/gin-gonic/gin"
)

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// ReadinessResponse 就绪检查响应
type ReadinessResponse struct {
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Session string `json:"session,omitempty"`
}

// HealthCheck 健康检查
func HealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Service: "opsdash"})
	}
}

// ReadinessCheck 就绪检查：凭证存储可读即视为就绪
func ReadinessCheck(tokens tokenstore.Store, state func() string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if _, err := tokens.Load(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, ReadinessResponse{
				Status: "not_ready",
				Reason: "token store unavailable",
			})
			return
		}

		c.JSON(http.StatusOK, ReadinessResponse{Status: "ready", Session: state()})
	}
}

// getEnvList 读取逗号分隔的环境变量列表
func getEnvList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var res []string
	for _, p := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(p); v != "" {
			res = append(res, v)
		}
	}
	return res
}
