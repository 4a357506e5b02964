package common

import (
	"opsdash/internal/scope"

	"github.com/gin-gonic/gin"
)

// QueryFilters 收集列表过滤参数，租户参数由作用域中间件单独处理
func QueryFilters(c *gin.Context) map[string]string {
	filters := make(map[string]string)
	for k, vs := range c.Request.URL.Query() {
		if k == scope.ParamTenantID || len(vs) == 0 {
			continue
		}
		filters[k] = vs[0]
	}
	return filters
}
