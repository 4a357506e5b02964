package query

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval 告警列表默认刷新间隔
const DefaultInterval = 30 * time.Second

// Refresher periodically runs a fetch while a session is active.
type Refresher struct {
	interval time.Duration
	active   func() bool
	fetch    func(ctx context.Context) error
	logger   *zap.Logger
}

// NewRefresher 创建定时刷新器；active 为 nil 时总是执行
func NewRefresher(interval time.Duration, active func() bool, fetch func(ctx context.Context) error, logger *zap.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{interval: interval, active: active, fetch: fetch, logger: logger.Named("refresher")}
}

// Run blocks until ctx is cancelled, calling fetch once per interval.
// Fetch errors are logged and do not stop the loop.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Refresher) tick(ctx context.Context) {
	if r.active != nil && !r.active() {
		return
	}
	if err := r.fetch(ctx); err != nil {
		if errors.Is(err, ErrStaleResponse) || errors.Is(err, context.Canceled) {
			r.logger.Debug("刷新结果已丢弃", zap.Error(err))
			return
		}
		r.logger.Warn("定时刷新失败", zap.Error(err))
	}
}
