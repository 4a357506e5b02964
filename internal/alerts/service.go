// Package alerts reads and mutates upstream alerts for the effective tenant
// and refuses any response that carries another tenant's data.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"opsdash/internal/isolation"
	"opsdash/internal/metrics"
	"opsdash/internal/query"
	"opsdash/internal/scope"
	"opsdash/internal/tenant"
	"opsdash/internal/transport"

	"go.uber.org/zap"
)

// KindAlerts 告警查询类型
const KindAlerts = "alerts"

var (
	// ErrInvalidStatus 非法的告警状态
	ErrInvalidStatus = errors.New("alerts: invalid status")
	// ErrEmptyID 告警 ID 为空
	ErrEmptyID = errors.New("alerts: empty alert id")
)

// Upstream is the part of transport.Client the service calls.
type Upstream interface {
	Send(ctx context.Context, req transport.Request, out any) error
	SendRaw(ctx context.Context, req transport.Request) ([]byte, http.Header, error)
}

// Service 告警服务
type Service struct {
	client    Upstream
	tenant    *tenant.Context
	builder   *scope.Builder
	validator *isolation.Validator
	tracker   *query.Tracker
	tracer    *isolation.Tracer
	logger    *zap.Logger
}

// NewService 创建告警服务
func NewService(client Upstream, tc *tenant.Context, tracker *query.Tracker, validator *isolation.Validator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client:    client,
		tenant:    tc,
		builder:   scope.NewBuilder(tc),
		validator: validator,
		tracker:   tracker,
		tracer:    isolation.NewTracer(logger),
		logger:    logger.Named("alerts"),
	}
}

// resolve builds outbound parameters for the effective tenant, preferring the
// scope the HTTP layer bound to ctx. It also returns the identity generation
// the scope belongs to; a bound scope whose session is already gone is
// refused before any upstream call.
func (s *Service) resolve(ctx context.Context, stage string, filters map[string]string, override string) (url.Values, tenant.Scope, uint64, error) {
	params, sc, gen := s.builder.Resolve(ctx, scope.NormalizeFilters(filters), override)
	if sc.IsNone() {
		return nil, sc, gen, scope.ErrNoSession
	}
	if err := s.sameIdentity(gen); err != nil {
		return nil, sc, gen, err
	}
	s.tracer.TraceScope(stage, sc, zap.String("override", override))
	return params, sc, gen, nil
}

// sameIdentity rejects a response whose issuing identity is no longer live.
func (s *Service) sameIdentity(gen uint64) error {
	if s.tenant.Generation() != gen {
		metrics.StaleResponsesTotal.WithLabelValues("identity_changed").Inc()
		return query.ErrStaleResponse
	}
	return nil
}

// List fetches alerts matching filters. Filter values are lower-cased before
// they reach the upstream. The whole page is rejected when any alert belongs
// to another tenant.
func (s *Service) List(ctx context.Context, filters map[string]string, override string) (*ListResult, error) {
	params, sc, gen, err := s.resolve(ctx, "alerts.list", filters, override)
	if err != nil {
		return nil, err
	}
	ticket := s.tracker.Begin(query.NewKey(KindAlerts, sc, params))

	var res ListResult
	if err := s.client.Send(ctx, transport.Request{Method: http.MethodGet, Path: "/alerts", Params: params}, &res); err != nil {
		return nil, fmt.Errorf("获取告警列表失败: %w", err)
	}
	if err := s.tracker.Commit(ticket); err != nil {
		return nil, err
	}
	if err := s.sameIdentity(gen); err != nil {
		return nil, err
	}

	batch := isolation.Slice[Alert](res.Alerts)
	s.tracer.MonitorCall("/alerts", params, batch)
	if err := s.validator.Validate("alerts", sc, batch); err != nil {
		return nil, err
	}
	if res.Alerts == nil {
		res.Alerts = []Alert{}
	}
	return &res, nil
}

// Refresh asks the upstream to re-pull alerts from the monitoring sources and
// drops every in-flight alert list.
func (s *Service) Refresh(ctx context.Context, override string) (Summary, error) {
	params, _, gen, err := s.resolve(ctx, "alerts.refresh", nil, override)
	if err != nil {
		return nil, err
	}

	var res Summary
	if err := s.client.Send(ctx, transport.Request{Method: http.MethodPost, Path: "/alerts/refresh", Params: params}, &res); err != nil {
		return nil, fmt.Errorf("刷新告警失败: %w", err)
	}
	s.tracker.Invalidate(KindAlerts)
	if err := s.sameIdentity(gen); err != nil {
		return nil, err
	}
	return res, nil
}

// ValidateConfig asks the upstream to check the alert source configuration.
func (s *Service) ValidateConfig(ctx context.Context, override string) (*ValidationResult, error) {
	params, _, gen, err := s.resolve(ctx, "alerts.validate", nil, override)
	if err != nil {
		return nil, err
	}

	var res ValidationResult
	if err := s.client.Send(ctx, transport.Request{Method: http.MethodPost, Path: "/alerts/validate", Params: params}, &res); err != nil {
		return nil, fmt.Errorf("校验告警配置失败: %w", err)
	}
	if err := s.sameIdentity(gen); err != nil {
		return nil, err
	}
	return &res, nil
}

// Update applies patch to one alert. The echoed alert must belong to the
// effective tenant; otherwise ErrUnauthorizedAccess is returned.
func (s *Service) Update(ctx context.Context, id string, patch Patch, override string) (*Alert, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	if patch.Status != nil {
		st, err := ParseStatus(string(*patch.Status))
		if err != nil {
			return nil, err
		}
		patch.Status = &st
	}

	params, sc, gen, err := s.resolve(ctx, "alerts.update", nil, override)
	if err != nil {
		return nil, err
	}

	var alert Alert
	err = s.client.Send(ctx, transport.Request{
		Method: http.MethodPatch,
		Path:   "/alerts/" + url.PathEscape(id),
		Route:  "/alerts/{id}",
		Params: params,
		Body:   patch,
	}, &alert)
	if err != nil {
		return nil, fmt.Errorf("更新告警失败: %w", err)
	}
	s.tracker.Invalidate(KindAlerts)
	if err := s.sameIdentity(gen); err != nil {
		return nil, err
	}

	if err := s.validator.CheckRecord("alert update", sc, alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// Acknowledge 确认告警
func (s *Service) Acknowledge(ctx context.Context, id, override string) (*Alert, error) {
	st := StatusAcknowledged
	return s.Update(ctx, id, Patch{Status: &st}, override)
}

// Resolve 解决告警
func (s *Service) Resolve(ctx context.Context, id, override string) (*Alert, error) {
	st := StatusResolved
	return s.Update(ctx, id, Patch{Status: &st}, override)
}

// FilterOptions 返回可选过滤值
func (s *Service) FilterOptions() FilterOptions {
	return Options()
}
