package common

// ============================================================================
// 通用响应类型
// ============================================================================

// APIResponse 统一API响应格式
type APIResponse struct {
	Success bool   `json:"success"`           // 是否成功
	Data    any    `json:"data,omitempty"`    // 响应数据
	Message string `json:"message,omitempty"` // 提示信息
	Code    int    `json:"code"`              // 业务状态码
}

// SuccessResponse 成功响应
func SuccessResponse(data any) APIResponse {
	return APIResponse{
		Success: true,
		Data:    data,
		Code:    CodeSuccess,
	}
}

// SuccessMessageResponse 成功响应（带消息）
func SuccessMessageResponse(message string, data any) APIResponse {
	return APIResponse{
		Success: true,
		Data:    data,
		Message: message,
		Code:    CodeSuccess,
	}
}

// ErrorResponse 错误响应
func ErrorResponse(code int, message string) APIResponse {
	return APIResponse{
		Success: false,
		Message: message,
		Code:    code,
	}
}

// ============================================================================
// 业务状态码定义
// ============================================================================

const (
	// 成功状态码
	CodeSuccess = 0

	// 通用错误码 (1000-1999)
	CodeInvalidRequest     = 1000 // 请求参数错误
	CodeUnauthorized       = 1001 // 未授权
	CodeForbidden          = 1002 // 禁止访问
	CodeNotFound           = 1003 // 资源不存在
	CodeConflict           = 1004 // 资源冲突
	CodeInternalError      = 1005 // 内部错误
	CodeServiceUnavailable = 1006 // 服务不可用
	CodeTooManyRequests    = 1007 // 请求过于频繁

	// 会话相关错误码 (2000-2099)
	CodeInvalidCredentials = 2012 // 凭证无效
	CodeSessionExpired     = 2013 // 会话已过期
	CodeInvalidIdentity    = 2014 // 上游身份信息无效

	// 租户隔离相关错误码 (3000-3099)
	CodeIsolationViolation = 3000 // 响应包含其他租户数据
	CodeUnauthorizedAccess = 3001 // 访问其他租户的记录
	CodeStaleResponse      = 3002 // 响应已过期（身份变化或被新请求取代）

	// 上游相关错误码 (4000-4099)
	CodeUpstreamFailed = 4000 // 上游请求失败
)

// ErrorMessages 错误码对应的默认消息
var ErrorMessages = map[int]string{
	CodeSuccess:            "操作成功",
	CodeInvalidRequest:     "请求参数错误",
	CodeUnauthorized:       "未授权，请先登录",
	CodeForbidden:          "无权限访问",
	CodeNotFound:           "资源不存在",
	CodeConflict:           "资源冲突",
	CodeInternalError:      "系统内部错误",
	CodeServiceUnavailable: "服务暂不可用",
	CodeTooManyRequests:    "请求过于频繁，请稍后重试",

	CodeInvalidCredentials: "用户名或密码错误",
	CodeSessionExpired:     "会话已过期，请重新登录",
	CodeInvalidIdentity:    "账号信息异常，请联系管理员",

	CodeIsolationViolation: "数据校验失败，请稍后重试",
	CodeUnauthorizedAccess: "无权访问该记录",
	CodeStaleResponse:      "数据已过期，请刷新",

	CodeUpstreamFailed: "告警服务暂不可用",
}

// GetErrorMessage 获取错误码对应的消息
func GetErrorMessage(code int) string {
	if msg, ok := ErrorMessages[code]; ok {
		return msg
	}
	return "未知错误"
}
