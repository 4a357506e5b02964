package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"opsdash/internal/config"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// OpenDatabase 打开 sql 凭证存储使用的数据库（sqlite 或 postgres）
func OpenDatabase(cfg config.SessionConfig, logger *zap.Logger) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(logger, gormLogger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("打开数据库连接失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取 SQL DB 失败: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	logger.Info("数据库连接成功", zap.String("driver", cfg.SQLDriver))
	return db, nil
}

func dialectorFor(cfg config.SessionConfig) (gorm.Dialector, error) {
	switch cfg.SQLDriver {
	case "", "sqlite":
		if dir := filepath.Dir(cfg.SQLDSN); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("创建数据库目录失败: %w", err)
			}
		}
		return sqlite.Open(cfg.SQLDSN), nil
	case "postgres":
		return postgres.Open(cfg.SQLDSN), nil
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s (可选: sqlite, postgres)", cfg.SQLDriver)
	}
}

// CloseDatabase 关闭数据库连接
func CloseDatabase(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
