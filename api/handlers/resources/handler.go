package resources

import (
	handlerCommon "opsdash/api/handlers/common"
	"opsdash/internal/common"
	"opsdash/internal/middleware"
	resourceSvc "opsdash/internal/resources"

	"github.com/gin-gonic/gin"
)

// Handler 资源处理器
type Handler struct {
	service *resourceSvc.Service
}

// NewHandler 创建资源处理器
func NewHandler(service *resourceSvc.Service) *Handler {
	return &Handler{service: service}
}

// List 资源列表
func (h *Handler) List(c *gin.Context) {
	res, err := h.service.List(c.Request.Context(), handlerCommon.QueryFilters(c), middleware.Override(c))
	if err != nil {
		handlerCommon.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, res)
}

// Get 资源详情
func (h *Handler) Get(c *gin.Context) {
	res, err := h.service.Get(c.Request.Context(), c.Param("id"), middleware.Override(c))
	if err != nil {
		handlerCommon.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, res)
}

// Refresh 触发上游重新同步资源
func (h *Handler) Refresh(c *gin.Context) {
	summary, err := h.service.Refresh(c.Request.Context(), middleware.Override(c))
	if err != nil {
		handlerCommon.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, summary)
}

// Filters 可用过滤值
func (h *Handler) Filters(c *gin.Context) {
	common.ResponseSuccess(c, h.service.FilterOptions())
}
