package common

import (
	"context"
	"errors"
	"net/http"

	"opsdash/internal/alerts"
	respond "opsdash/internal/common"
	"opsdash/internal/isolation"
	"opsdash/internal/logger"
	"opsdash/internal/query"
	"opsdash/internal/resources"
	"opsdash/internal/scope"
	"opsdash/internal/session"
	"opsdash/internal/tenant"
	"opsdash/internal/transport"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CodeOf 将领域错误映射为业务状态码
func CodeOf(err error) int {
	switch {
	case errors.Is(err, scope.ErrNoSession):
		return respond.CodeUnauthorized
	case errors.Is(err, transport.ErrAuthExpired):
		return respond.CodeSessionExpired
	case errors.Is(err, transport.ErrInvalidCredentials):
		return respond.CodeInvalidCredentials
	case errors.Is(err, tenant.ErrMalformedIdentity),
		errors.Is(err, tenant.ErrInvalidIdentityState),
		errors.Is(err, session.ErrMissingToken):
		return respond.CodeInvalidIdentity
	case errors.Is(err, isolation.ErrDataIsolationViolation):
		return respond.CodeIsolationViolation
	case errors.Is(err, isolation.ErrUnauthorizedAccess):
		return respond.CodeUnauthorizedAccess
	case errors.Is(err, query.ErrStaleResponse), errors.Is(err, session.ErrSuperseded):
		return respond.CodeStaleResponse
	case errors.Is(err, alerts.ErrInvalidStatus),
		errors.Is(err, alerts.ErrEmptyID),
		errors.Is(err, resources.ErrEmptyID):
		return respond.CodeInvalidRequest
	case transport.StatusCode(err) == http.StatusNotFound:
		return respond.CodeNotFound
	case errors.Is(err, transport.ErrTransport),
		errors.Is(err, alerts.ErrMalformedExport),
		errors.Is(err, context.DeadlineExceeded):
		return respond.CodeUpstreamFailed
	default:
		return respond.CodeInternalError
	}
}

// RespondError 输出错误响应。隔离类错误只返回通用提示，细节仅写日志
func RespondError(c *gin.Context, err error) {
	code := CodeOf(err)
	log := logger.WithContext(c.Request.Context())

	switch code {
	case respond.CodeInternalError, respond.CodeUpstreamFailed, respond.CodeInvalidIdentity:
		log.Error("请求处理失败", zap.String("path", c.FullPath()), zap.Int("code", code), zap.Error(err))
	case respond.CodeIsolationViolation, respond.CodeUnauthorizedAccess:
		// 违规细节已由 isolation 记录
	default:
		log.Debug("请求被拒绝", zap.String("path", c.FullPath()), zap.Int("code", code), zap.Error(err))
	}

	respond.ResponseError(c, code, "")
}
