package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 本地 API 指标
var (
	// APIRequestsTotal 本地 API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsdash_api_requests_total",
			Help: "本地 API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration 本地 API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsdash_api_request_duration_seconds",
			Help:    "本地 API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 上游调用指标
var (
	// UpstreamRequestsTotal 上游请求总数
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsdash_upstream_requests_total",
			Help: "上游告警 API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// UpstreamRequestDuration 上游请求耗时（秒）
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opsdash_upstream_request_duration_seconds",
			Help:    "上游告警 API 请求耗时分布",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// 租户隔离与会话指标
var (
	// IsolationChecksTotal 隔离校验次数
	IsolationChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsdash_isolation_checks_total",
			Help: "响应数据租户隔离校验次数",
		},
		[]string{"operation", "result"},
	)

	// IsolationViolationsTotal 隔离违规次数
	IsolationViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsdash_isolation_violations_total",
			Help: "检测到跨租户数据泄漏的批次数",
		},
		[]string{"operation"},
	)

	// SessionTransitionsTotal 会话状态迁移次数
	SessionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsdash_session_transitions_total",
			Help: "会话状态迁移次数",
		},
		[]string{"from", "to"},
	)

	// StaleResponsesTotal 被丢弃的过期响应
	StaleResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsdash_stale_responses_total",
			Help: "因身份变化或被新请求取代而丢弃的响应数",
		},
		[]string{"kind"},
	)
)

// RecordIsolationCheck 记录一次隔离校验结果
func RecordIsolationCheck(operation string, passed bool) {
	result := "passed"
	if !passed {
		result = "violation"
		IsolationViolationsTotal.WithLabelValues(operation).Inc()
	}
	IsolationChecksTotal.WithLabelValues(operation, result).Inc()
}
