package session

import (
	"context"

	handlerCommon "opsdash/api/handlers/common"
	"opsdash/internal/common"
	sessionSvc "opsdash/internal/session"
	"opsdash/internal/tenant"
	"opsdash/internal/transport"

	"github.com/gin-gonic/gin"
)

// Lifecycle is the part of the session lifecycle the handler drives.
type Lifecycle interface {
	State() sessionSvc.State
	Identity() *tenant.Identity
	Restore(ctx context.Context) (*tenant.Identity, error)
	Login(ctx context.Context, creds transport.Credentials) (*tenant.Identity, error)
	Logout(ctx context.Context) error
}

// Handler 会话处理器
type Handler struct {
	lifecycle Lifecycle
}

// NewHandler 创建会话处理器
func NewHandler(lc Lifecycle) *Handler {
	return &Handler{lifecycle: lc}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// SessionResponse 会话状态
type SessionResponse struct {
	State string          `json:"state"`
	User  *tenant.Payload `json:"user,omitempty"`
}

func (h *Handler) snapshot(identity *tenant.Identity) SessionResponse {
	resp := SessionResponse{State: h.lifecycle.State().String()}
	if identity != nil {
		p := identity.Payload()
		resp.User = &p
	}
	return resp
}

// Get 当前会话
func (h *Handler) Get(c *gin.Context) {
	common.ResponseSuccess(c, h.snapshot(h.lifecycle.Identity()))
}

// Login 登录并建立会话
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	identity, err := h.lifecycle.Login(c.Request.Context(), transport.Credentials{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		handlerCommon.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, h.snapshot(identity))
}

// Restore 使用已保存的凭证恢复会话
func (h *Handler) Restore(c *gin.Context) {
	identity, err := h.lifecycle.Restore(c.Request.Context())
	if err != nil {
		handlerCommon.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, h.snapshot(identity))
}

// Logout 退出登录
func (h *Handler) Logout(c *gin.Context) {
	if err := h.lifecycle.Logout(c.Request.Context()); err != nil {
		handlerCommon.RespondError(c, err)
		return
	}
	common.ResponseSuccessMessage(c, "已退出登录", h.snapshot(nil))
}
