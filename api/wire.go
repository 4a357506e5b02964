package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	alertHandlers "opsdash/api/handlers/alerts"
	resourceHandlers "opsdash/api/handlers/resources"
	sessionHandlers "opsdash/api/handlers/session"
	"opsdash/internal/alerts"
	"opsdash/internal/config"
	"opsdash/internal/infra"
	"opsdash/internal/isolation"
	"opsdash/internal/middleware"
	"opsdash/internal/query"
	"opsdash/internal/resources"
	"opsdash/internal/session"
	"opsdash/internal/tenant"
	"opsdash/internal/tokenstore"
	"opsdash/internal/transport"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AppContainer 应用依赖容器
type AppContainer struct {
	// 基础设施
	Config      *config.Config
	Logger      *zap.Logger
	DB          *gorm.DB
	RedisClient redis.UniversalClient

	// 会话相关
	Tenant    *tenant.Context
	Tokens    tokenstore.Store
	Client    *transport.Client
	Lifecycle *session.Lifecycle

	// 数据隔离与查询
	Tracker   *query.Tracker
	Validator *isolation.Validator

	// 业务服务
	AlertService    *alerts.Service
	ResourceService *resources.Service
	AlertPoller     *alerts.Poller

	RateLimiter *middleware.RateLimiter
}

// Handlers 所有 HTTP 处理器
type Handlers struct {
	Session   *sessionHandlers.Handler
	Alerts    *alertHandlers.Handler
	Resources *resourceHandlers.Handler
}

// BuildContainer 按配置组装全部依赖
func BuildContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*AppContainer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &AppContainer{
		Config: cfg,
		Logger: logger,
		Tenant: tenant.NewContext(),
	}

	if err := c.initTokenStore(ctx); err != nil {
		c.Close()
		return nil, err
	}

	c.initSession()
	c.initServices()

	c.RateLimiter = middleware.NewRateLimiter(middleware.NewRateLimiterConfig(
		cfg.RateLimit.RequestsPerSecond,
		cfg.RateLimit.RequestsPerMinute,
		cfg.RateLimit.BurstSize,
	))

	return c, nil
}

// initTokenStore 根据 session.store 选择凭证存储
func (c *AppContainer) initTokenStore(ctx context.Context) error {
	cfg := c.Config.Session
	key := cfg.TokenKey
	if key == "" {
		key = tokenstore.DefaultKey
	}

	switch cfg.Store {
	case "memory":
		c.Tokens = tokenstore.NewMemoryStore()

	case "file":
		c.Tokens = tokenstore.NewFileStore(cfg.FilePath, key)

	case "redis":
		client, err := infra.NewRedis(ctx, c.Config.Redis, c.Logger)
		if err != nil {
			return fmt.Errorf("初始化 Redis 失败: %w", err)
		}
		c.RedisClient = client
		ttl := time.Duration(c.Config.Redis.TokenTTL) * time.Second
		c.Tokens = tokenstore.NewRedisStore(client, c.Config.Redis.Prefix, key, ttl)

	case "sql":
		db, err := infra.OpenDatabase(cfg, c.Logger)
		if err != nil {
			return fmt.Errorf("初始化数据库失败: %w", err)
		}
		c.DB = db
		store, err := tokenstore.NewSQLStore(db, key)
		if err != nil {
			return fmt.Errorf("初始化凭证表失败: %w", err)
		}
		c.Tokens = store

	default:
		return fmt.Errorf("不支持的凭证存储: %s", cfg.Store)
	}

	c.Logger.Info("凭证存储初始化完成", zap.String("store", cfg.Store))
	return nil
}

// initSession 组装上游客户端与会话生命周期，并挂接 401 回调
func (c *AppContainer) initSession() {
	up := c.Config.Upstream
	apiBase := strings.TrimRight(up.BaseURL, "/") + "/" + strings.Trim(up.APIPrefix, "/")

	c.Client = transport.NewClient(apiBase, c.Tokens,
		transport.WithTimeout(up.TimeoutDuration()),
		transport.WithRetries(up.MaxRetries),
		transport.WithLogger(c.Logger),
		transport.WithRequestID(middleware.GetRequestID),
	)

	log := c.Logger.Named("session")
	c.Lifecycle = session.NewLifecycle(c.Tenant, c.Tokens, c.Client,
		session.WithLogger(log),
		session.WithNavigator(session.NavigatorFunc(func(_ context.Context, reason string) {
			log.Info("会话已结束，等待重新登录", zap.String("reason", reason))
		})),
	)
	c.Client.OnAuthExpired(c.Lifecycle.HandleAuthExpired)
}

// initServices 组装告警与资源服务
func (c *AppContainer) initServices() {
	c.Tracker = query.NewTracker(c.Tenant)
	c.Validator = isolation.NewValidator(c.Logger.Named("isolation"))

	c.AlertService = alerts.NewService(c.Client, c.Tenant, c.Tracker, c.Validator, c.Logger.Named("alerts"))
	c.ResourceService = resources.NewService(c.Client, c.Tenant, c.Tracker, c.Validator, c.Logger.Named("resources"))
	c.AlertPoller = alerts.NewPoller(c.AlertService, c.Tenant)
}

// InitHandlers 初始化所有 Handlers
func (c *AppContainer) InitHandlers() *Handlers {
	return &Handlers{
		Session:   sessionHandlers.NewHandler(c.Lifecycle),
		Alerts:    alertHandlers.NewHandler(c.AlertService, c.AlertPoller),
		Resources: resourceHandlers.NewHandler(c.ResourceService),
	}
}

// Close 释放基础设施连接
func (c *AppContainer) Close() {
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("关闭 Redis 失败", zap.Error(err))
		}
	}
	if c.DB != nil {
		if err := infra.CloseDatabase(c.DB); err != nil {
			c.Logger.Warn("关闭数据库失败", zap.Error(err))
		}
	}
}
