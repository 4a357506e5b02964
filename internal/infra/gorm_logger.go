package infra

import (
	"context"
	"errors"
	"time"

	"opsdash/internal/logger"

	"go.uber.org/zap"
	gormLogger "gorm.io/gorm/logger"
)

// GormZapLogger GORM 日志适配器（输出到 Zap）
type GormZapLogger struct {
	ZapLogger     *zap.Logger
	LogLevel      gormLogger.LogLevel
	SlowThreshold time.Duration
}

// NewGormLogger 创建 GORM 日志适配器，忽略 RecordNotFound（凭证不存在是正常状态）
func NewGormLogger(l *zap.Logger, level gormLogger.LogLevel) *GormZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &GormZapLogger{
		ZapLogger:     l.Named("gorm"),
		LogLevel:      level,
		SlowThreshold: 200 * time.Millisecond,
	}
}

// LogMode 设置日志级别
func (l *GormZapLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

func (l *GormZapLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Info {
		l.with(ctx).Sugar().Infof(msg, data...)
	}
}

func (l *GormZapLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Warn {
		l.with(ctx).Sugar().Warnf(msg, data...)
	}
}

func (l *GormZapLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Error {
		l.with(ctx).Sugar().Errorf(msg, data...)
	}
}

// Trace SQL 执行日志。SQL 文本包含令牌值，不输出
func (l *GormZapLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormLogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	_, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
	}

	switch {
	case err != nil && !errors.Is(err, gormLogger.ErrRecordNotFound):
		l.with(ctx).Error("SQL 执行错误", append(fields, zap.Error(err))...)
	case l.SlowThreshold > 0 && elapsed > l.SlowThreshold:
		l.with(ctx).Warn("SQL 慢查询", fields...)
	case l.LogLevel >= gormLogger.Info:
		l.with(ctx).Debug("SQL 执行", fields...)
	}
}

func (l *GormZapLogger) with(ctx context.Context) *zap.Logger {
	if id := logger.GetTraceID(ctx); id != "" {
		return l.ZapLogger.With(zap.String("trace_id", id))
	}
	return l.ZapLogger
}
