package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Session   SessionConfig   `mapstructure:"session"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Refresh   RefreshConfig   `mapstructure:"refresh"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig 本地 HTTP 服务配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// UpstreamConfig 上游告警 API 配置
type UpstreamConfig struct {
	BaseURL    string `mapstructure:"base_url"`    // 如 http://localhost:8000
	APIPrefix  string `mapstructure:"api_prefix"`  // 默认 /api/v1
	Timeout    int    `mapstructure:"timeout"`     // 秒
	MaxRetries int    `mapstructure:"max_retries"` // 仅对幂等请求生效
}

// SessionConfig 凭证存储配置
type SessionConfig struct {
	Store    string `mapstructure:"store"`     // memory, file, redis, sql
	TokenKey string `mapstructure:"token_key"` // 凭证存储键
	FilePath string `mapstructure:"file_path"` // file 模式的文件路径
	// sql 模式
	SQLDriver string `mapstructure:"sql_driver"` // sqlite, postgres
	SQLDSN    string `mapstructure:"sql_dsn"`
}

// RedisConfig Redis 配置（仅 redis 凭证存储使用）
type RedisConfig struct {
	Mode          string   `mapstructure:"mode"` // standalone, sentinel, cluster
	Host          string   `mapstructure:"host"`
	Port          int      `mapstructure:"port"`
	Password      string   `mapstructure:"password"`
	DB            int      `mapstructure:"db"`
	PoolSize      int      `mapstructure:"pool_size"`
	MasterName    string   `mapstructure:"master_name"`
	SentinelAddrs []string `mapstructure:"sentinel_addrs"`
	ClusterAddrs  []string `mapstructure:"cluster_addrs"`
	Prefix        string   `mapstructure:"prefix"`
	TokenTTL      int      `mapstructure:"token_ttl"` // 秒，0 表示不过期
}

// RateLimitConfig 本地 API 限流配置，用于保护上游的刷新与登录接口
type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	BurstSize         int `mapstructure:"burst_size"`
}

// RefreshConfig 周期刷新配置
type RefreshConfig struct {
	Interval string `mapstructure:"interval"` // 如 "30s"，"0" 表示关闭
}

// TimeoutDuration 返回上游请求超时
func (u UpstreamConfig) TimeoutDuration() time.Duration {
	if u.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(u.Timeout) * time.Second
}

// IntervalDuration 解析刷新间隔，非法值回退为 30s
func (r RefreshConfig) IntervalDuration() time.Duration {
	if r.Interval == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(r.Interval)
	if err != nil || d < 0 {
		return 30 * time.Second
	}
	return d
}

var globalConfig *Config

// setDefaults 默认值，保证无配置文件时也能启动
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 60)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("upstream.base_url", "http://localhost:8000")
	v.SetDefault("upstream.api_prefix", "/api/v1")
	v.SetDefault("upstream.timeout", 30)
	v.SetDefault("upstream.max_retries", 0)

	v.SetDefault("session.store", "file")
	v.SetDefault("session.token_key", "auth_token")
	v.SetDefault("session.file_path", "./data/session.yaml")
	v.SetDefault("session.sql_driver", "sqlite")
	v.SetDefault("session.sql_dsn", "./data/session.db")

	v.SetDefault("redis.mode", "standalone")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.prefix", "opsdash:")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.token_ttl", 0)

	v.SetDefault("rate_limit.requests_per_second", 1)
	v.SetDefault("rate_limit.requests_per_minute", 30)
	v.SetDefault("rate_limit.burst_size", 5)

	v.SetDefault("refresh.interval", "30s")
}

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath == "" {
		v.SetConfigName(env) // dev.yaml, prod.yaml
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}
	v.SetConfigType("yaml")

	// 读取环境变量（优先级高于配置文件）：APP_UPSTREAM_BASE_URL
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// 未指定路径且找不到配置文件时仅使用默认值和环境变量
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return fmt.Errorf("upstream.base_url 不能为空")
	}
	switch c.Session.Store {
	case "memory", "file", "redis", "sql":
	default:
		return fmt.Errorf("不支持的凭证存储: %s (可选: memory, file, redis, sql)", c.Session.Store)
	}
	return nil
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("配置未初始化，请先调用 Load()")
	}
	return globalConfig
}
