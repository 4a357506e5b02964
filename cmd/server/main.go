package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"opsdash/api"
	"opsdash/internal/config"
	"opsdash/internal/logger"
	"opsdash/internal/query"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// 0. 统一加载 .env，便于集中管理 APP_* 环境变量
	loadEnvFile()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	// 1. 加载配置
	cfg, err := config.Load(env, os.Getenv("APP_CONFIG"))
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.String("env", env),
		zap.String("mode", cfg.Server.Mode),
		zap.String("upstream", cfg.Upstream.BaseURL),
		zap.String("session_store", cfg.Session.Store),
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 3. 组装依赖
	container, err := api.BuildContainer(ctx, cfg, logger.Get())
	if err != nil {
		logger.Fatal("初始化依赖失败", zap.Error(err))
	}
	defer container.Close()

	// 4. 使用已保存的凭证恢复会话，失败时保持未登录
	if identity, err := container.Lifecycle.Restore(ctx); err != nil {
		logger.Warn("启动时恢复会话失败", zap.Error(err))
	} else if identity != nil {
		logger.Info("会话已恢复", zap.String("user_id", identity.ID()), zap.String("role", identity.Role().String()))
	}

	// 5. 定时刷新告警概览
	if interval := cfg.Refresh.IntervalDuration(); interval > 0 {
		refresher := query.NewRefresher(interval, container.Tenant.IsAuthenticated, container.AlertPoller.Poll, logger.Get())
		go refresher.Run(ctx)
	} else {
		logger.Info("定时刷新已关闭")
	}

	// 6. 设置 Gin 模式并创建路由
	gin.SetMode(cfg.Server.Mode)
	router := api.SetupRouter(container)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP 服务器启动失败", zap.Error(err))
		}
	}()

	// 7. 优雅关闭
	gracefulShutdown(server, stop)
}

// loadEnvFile 依次尝试加载当前目录及上级目录的 .env 文件
func loadEnvFile() {
	if path := resolveEnvPath(); path != "" {
		if err := godotenv.Load(path); err != nil {
			fmt.Printf("加载环境变量文件 %s 失败: %v\n", path, err)
		} else {
			fmt.Printf("已加载环境变量文件: %s\n", path)
		}
	}
}

// resolveEnvPath 从当前工作目录向上查找 .env
func resolveEnvPath() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}
	dir := filepath.Clean(wd)
	for i := 0; i < 4; i++ {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// gracefulShutdown 优雅关闭
func gracefulShutdown(server *http.Server, stop context.CancelFunc) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务器...")
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	logger.Info("服务器已安全关闭")
}
