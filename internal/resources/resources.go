// Package resources lists and inspects the cloud resources of the effective
// tenant.
package resources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"opsdash/internal/alerts"
	"opsdash/internal/isolation"
	"opsdash/internal/metrics"
	"opsdash/internal/query"
	"opsdash/internal/scope"
	"opsdash/internal/tenant"
	"opsdash/internal/transport"

	"go.uber.org/zap"
)

// KindResources 资源查询类型
const KindResources = "resources"

// ErrEmptyID 资源 ID 为空
var ErrEmptyID = errors.New("resources: empty resource id")

// Resource 云资源
type Resource struct {
	ID            string               `json:"id"`
	Name          string               `json:"name,omitempty"`
	ResourceType  string               `json:"resource_type"`
	CloudProvider alerts.CloudProvider `json:"cloud_provider"`
	Region        string               `json:"region,omitempty"`
	Status        string               `json:"status,omitempty"`
	OrgID         string               `json:"org_id"`
	Tags          map[string]string    `json:"tags,omitempty"`
	CreatedAt     *time.Time           `json:"created_at,omitempty"`
}

func (r Resource) RecordID() string       { return r.ID }
func (r Resource) RecordTenantID() string { return r.OrgID }

// ListResult `GET /resources` 响应
type ListResult struct {
	Resources  []Resource `json:"resources"`
	TotalCount int        `json:"total_count"`
}

// FilterOptions 可选过滤值
type FilterOptions struct {
	CloudProvider []alerts.CloudProvider `json:"cloud_provider"`
	ResourceType  []string               `json:"resource_type"`
}

// Options 返回资源列表可用的过滤值
func Options() FilterOptions {
	return FilterOptions{
		CloudProvider: alerts.Options().CloudProvider,
		ResourceType:  []string{"ec2", "rds", "lambda", "vm", "storage", "network"},
	}
}

// Service 资源服务
type Service struct {
	client    alerts.Upstream
	tenant    *tenant.Context
	builder   *scope.Builder
	validator *isolation.Validator
	tracker   *query.Tracker
	tracer    *isolation.Tracer
	logger    *zap.Logger
}

// NewService 创建资源服务
func NewService(client alerts.Upstream, tc *tenant.Context, tracker *query.Tracker, validator *isolation.Validator, logger *zap.Logger) *Service {
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
		logger:    logger.Named("resources"),
	}
}

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

// sameIdentity 校验响应返回时会话身份未变化
func (s *Service) sameIdentity(gen uint64) error {
	if s.tenant.Generation() != gen {
		metrics.StaleResponsesTotal.WithLabelValues("identity_changed").Inc()
		return query.ErrStaleResponse
	}
	return nil
}

// List fetches resources matching filters for the effective tenant.
func (s *Service) List(ctx context.Context, filters map[string]string, override string) (*ListResult, error) {
	params, sc, gen, err := s.resolve(ctx, "resources.list", filters, override)
	if err != nil {
		return nil, err
	}
	ticket := s.tracker.Begin(query.NewKey(KindResources, sc, params))

	var res ListResult
	if err := s.client.Send(ctx, transport.Request{Method: http.MethodGet, Path: "/resources", Params: params}, &res); err != nil {
		return nil, fmt.Errorf("获取资源列表失败: %w", err)
	}
	if err := s.tracker.Commit(ticket); err != nil {
		return nil, err
	}
	if err := s.sameIdentity(gen); err != nil {
		return nil, err
	}

	batch := isolation.Slice[Resource](res.Resources)
	s.tracer.MonitorCall("/resources", params, batch)
	if err := s.validator.Validate("resources", sc, batch); err != nil {
		return nil, err
	}
	if res.Resources == nil {
		res.Resources = []Resource{}
	}
	return &res, nil
}

// Refresh asks the upstream to re-discover resources and drops in-flight lists.
func (s *Service) Refresh(ctx context.Context, override string) (alerts.Summary, error) {
	params, _, gen, err := s.resolve(ctx, "resources.refresh", nil, override)
	if err != nil {
		return nil, err
	}

	var res alerts.Summary
	if err := s.client.Send(ctx, transport.Request{Method: http.MethodPost, Path: "/resources/refresh", Params: params}, &res); err != nil {
		return nil, fmt.Errorf("刷新资源失败: %w", err)
	}
	s.tracker.Invalidate(KindResources)
	if err := s.sameIdentity(gen); err != nil {
		return nil, err
	}
	return res, nil
}

// Get fetches one resource. A resource outside the effective tenant yields
// ErrUnauthorizedAccess.
func (s *Service) Get(ctx context.Context, id, override string) (*Resource, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	params, sc, gen, err := s.resolve(ctx, "resources.get", nil, override)
	if err != nil {
		return nil, err
	}

	var res Resource
	err = s.client.Send(ctx, transport.Request{
		Method: http.MethodGet,
		Path:   "/resources/" + url.PathEscape(id),
		Route:  "/resources/{id}",
		Params: params,
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("获取资源详情失败: %w", err)
	}
	if err := s.sameIdentity(gen); err != nil {
		return nil, err
	}

	if err := s.validator.CheckRecord("resource", sc, res); err != nil {
		return nil, err
	}
	return &res, nil
}

// FilterOptions 返回可选过滤值
func (s *Service) FilterOptions() FilterOptions {
	return Options()
}
