package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// httpStatus 业务状态码到 HTTP 状态码的映射
var httpStatus = map[int]int{
	CodeInvalidRequest:     http.StatusBadRequest,
	CodeUnauthorized:       http.StatusUnauthorized,
	CodeForbidden:          http.StatusForbidden,
	CodeNotFound:           http.StatusNotFound,
	CodeConflict:           http.StatusConflict,
	CodeInternalError:      http.StatusInternalServerError,
	CodeServiceUnavailable: http.StatusServiceUnavailable,
	CodeTooManyRequests:    http.StatusTooManyRequests,

	CodeInvalidCredentials: http.StatusUnauthorized,
	CodeSessionExpired:     http.StatusUnauthorized,
	CodeInvalidIdentity:    http.StatusBadGateway,

	CodeIsolationViolation: http.StatusBadGateway,
	CodeUnauthorizedAccess: http.StatusForbidden,
	CodeStaleResponse:      http.StatusConflict,

	CodeUpstreamFailed: http.StatusBadGateway,
}

// HTTPStatus 返回业务状态码对应的 HTTP 状态码
func HTTPStatus(code int) int {
	if s, ok := httpStatus[code]; ok {
		return s
	}
	return http.StatusOK // 未登记的业务错误返回200
}

// ResponseSuccess 返回成功响应
func ResponseSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, SuccessResponse(data))
}

// ResponseSuccessMessage 返回成功响应（带消息）
func ResponseSuccessMessage(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, SuccessMessageResponse(message, data))
}

// ResponseError 返回错误响应
func ResponseError(c *gin.Context, code int, message string) {
	if message == "" {
		message = GetErrorMessage(code)
	}
	c.JSON(HTTPStatus(code), ErrorResponse(code, message))
}

// AbortWithError 中断并返回错误
func AbortWithError(c *gin.Context, code int, message string) {
	ResponseError(c, code, message)
	c.Abort()
}

// ResponseBadRequest 返回参数错误响应
func ResponseBadRequest(c *gin.Context, message string) {
	ResponseError(c, CodeInvalidRequest, message)
}
