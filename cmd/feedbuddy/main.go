package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/iabetor/feedbuddy/internal/config"
	"github.com/iabetor/feedbuddy/internal/database"
	"github.com/iabetor/feedbuddy/internal/delivery"
	"github.com/iabetor/feedbuddy/internal/engine"
	"github.com/iabetor/feedbuddy/internal/feed"
	"github.com/iabetor/feedbuddy/internal/logger"
	"github.com/iabetor/feedbuddy/internal/source"
)

func main() {
	configPath := flag.String("config", "configs/feedbuddy.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infof("[main] FeedBuddy 启动中 (log_level=%s)", cfg.Log.Level)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		logger.Errorf("[main] 打开数据库失败: %v", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logger.Errorf("[main] 数据库迁移失败: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("[main] 收到信号 %v，正在关闭...", sig)
		cancel()
	}()

	registry := feed.NewRegistry(db, cfg.Engine.MaxSubscriptionsPerDestination)
	sources := source.NewSet(cfg.Sources, &http.Client{})
	deliverer := delivery.NewWebhook(cfg.Delivery)

	e := engine.New(cfg, registry, sources, deliverer, nil)
	e.Run(ctx)

	logger.Info("[main] FeedBuddy 已停止")
}
