package middleware

import (
	"strings"

	"opsdash/internal/common"
	"opsdash/internal/scope"
	"opsdash/internal/tenant"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// KeyOverride 写入 gin.Context 的租户覆盖参数键
const KeyOverride = "org_override"

// TenantScopeMiddleware resolves the effective tenant of the request from the
// live session and the optional ?org_id= override, and binds it together with
// the session generation to the request context. Requests without a session are
// rejected with 401.
func TenantScopeMiddleware(tc *tenant.Context, logger *zap.Logger) gin.HandlerFunc {
	log := logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		override := strings.TrimSpace(c.Query(scope.ParamTenantID))
		gen := tc.Generation()
		sc := tc.ResolveEffectiveTenant(override)
		if sc.IsNone() {
			log.Debug("no session for tenant scoped route", zap.String("path", c.FullPath()))
			common.AbortWithError(c, common.CodeUnauthorized, "")
			return
		}

		if own, ok := tc.OwnTenantID(); ok && override != "" && override != own {
			log.Warn("tenant user override ignored",
				zap.String("path", c.FullPath()),
				zap.String("org_id", own),
				zap.String("override", override),
			)
		}

		c.Set(KeyOverride, override)
		c.Request = c.Request.WithContext(tenant.WithScope(c.Request.Context(), sc, gen))
		c.Next()
	}
}

// Override 返回请求携带的租户覆盖参数
func Override(c *gin.Context) string {
	return c.GetString(KeyOverride)
}
