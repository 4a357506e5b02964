package alerts

import (
	"fmt"
	"net/http"
	"time"

	handlerCommon "opsdash/api/handlers/common"
	alertSvc "opsdash/internal/alerts"
	"opsdash/internal/common"
	"opsdash/internal/middleware"
	"opsdash/internal/query"

	"github.com/gin-gonic/gin"
)

// Handler 告警处理器
type Handler struct {
	service *alertSvc.Service
	poller  *alertSvc.Poller
}

// NewHandler 创建告警处理器
func NewHandler(service *alertSvc.Service, poller *alertSvc.Poller) *Handler {
	return &Handler{service: service, poller: poller}
}

// StatsResponse 告警概览
type StatsResponse struct {
	alertSvc.Stats
	FetchedAt time.Time `json:"fetched_at"`
}

// List 告警列表
func (h *Handler) List(c *gin.Context) {
	res, err := h.service.List(c.Request.Context(), handlerCommon.QueryFilters(c), middleware.Override(c))
	if err != nil {
		handlerCommon.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, res)
}

// Refresh 触发上游重新拉取告警
func (h *Handler) Refresh(c *gin.Context) {
	summary, err := h.service.Refresh(c.Request.Context(), middleware.Override(c))
	if err != nil {
		handlerCommon.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, summary)
}

// Validate 校验告警源配置
func (h *Handler) Validate(c *gin.Context) {
	res, err := h.service.ValidateConfig(c.Request.Context(), middleware.Override(c))
	if err != nil {
		handlerCommon.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, res)
}

// Update 更新告警
func (h *Handler) Update(c *gin.Context) {
	var patch alertSvc.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		common.ResponseBadRequest(c, "参数错误: "+err.Error())
		return
	}

	alert, err := h.service.Update(c.Request.Context(), c.Param("id"), patch, middleware.Override(c))
	if err != nil {
		handlerCommon.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, alert)
}

// Acknowledge 确认告警
func (h *Handler) Acknowledge(c *gin.Context) {
	alert, err := h.service.Acknowledge(c.Request.Context(), c.Param("id"), middleware.Override(c))
	if err != nil {
		handlerCommon.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, alert)
}

// Resolve 解决告警
func (h *Handler) Resolve(c *gin.Context) {
	alert, err := h.service.Resolve(c.Request.Context(), c.Param("id"), middleware.Override(c))
	if err != nil {
		handlerCommon.RespondError(c, err)
		return
	}
	common.ResponseSuccess(c, alert)
}

// Export 导出告警 CSV
func (h *Handler) Export(c *gin.Context) {
	body, err := h.service.Export(c.Request.Context(), handlerCommon.QueryFilters(c), middleware.Override(c))
	if err != nil {
		handlerCommon.RespondError(c, err)
		return
	}
	name := fmt.Sprintf("alerts-%s.csv", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", body)
}

// Filters 可用过滤值
func (h *Handler) Filters(c *gin.Context) {
	common.ResponseSuccess(c, h.service.FilterOptions())
}

// Stats 告警概览。默认作用域复用轮询结果，带覆盖参数时实时查询
func (h *Handler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	if override := middleware.Override(c); override != "" {
		res, err := h.service.List(ctx, nil, override)
		if err != nil {
			handlerCommon.RespondError(c, err)
			return
		}
		common.ResponseSuccess(c, StatsResponse{Stats: alertSvc.Summarize(res.Alerts), FetchedAt: time.Now()})
		return
	}

	res, at, ok := h.poller.Latest()
	if !ok {
		if err := h.poller.Poll(ctx); err != nil {
			handlerCommon.RespondError(c, err)
			return
		}
		if res, at, ok = h.poller.Latest(); !ok {
			handlerCommon.RespondError(c, query.ErrStaleResponse)
			return
		}
	}
	common.ResponseSuccess(c, StatsResponse{Stats: alertSvc.Summarize(res.Alerts), FetchedAt: at})
}
