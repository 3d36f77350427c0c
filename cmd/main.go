// 本文件用于程序启动入口
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"bluegreen-watch/internal/alert"
	"bluegreen-watch/internal/api"
	"bluegreen-watch/internal/config"
	"bluegreen-watch/internal/history"
	"bluegreen-watch/internal/logger"
	"bluegreen-watch/internal/metrics"
	"bluegreen-watch/internal/models"
	"bluegreen-watch/internal/notify"
	"bluegreen-watch/internal/tail"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("程序退出: %v", err)
	}
}

func run() error {
	configPath, envFiles := parseFlags()
	config.LoadEnvFiles(envFiles...)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := logger.InitLogger(cfg); err != nil {
		return err
	}
	defer logger.Close()

	logConfig(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.Global()
	notifier := notify.Build(notify.Options{
		SlackWebhook:    cfg.SlackWebhookURL,
		DingTalkWebhook: cfg.DingTalkWebhook,
		DingTalkSecret:  cfg.DingTalkSecret,
		Timeout:         cfg.NotifyDeadline(),
		Console:         os.Stdout,
	})
	dispatcher := notify.NewDispatcher(notifier, cfg.NotifyWorkers, cfg.NotifyQueueSize, cfg.NotifyDeadline())
	dispatcher.SetObserver(collector.ObserveNotify)

	monitor := alert.NewMonitor(alert.Options{
		Threshold:       cfg.ErrorRateThreshold,
		WindowSize:      cfg.WindowSize,
		Cooldown:        cfg.Cooldown(),
		WaitInterval:    cfg.WaitEvery(),
		RestartFollower: cfg.RestartFollower(),
	}, dispatcher)
	monitor.SetMetrics(collector)

	var (
		store    *history.Store
		recorder *history.AsyncRecorder
	)
	if strings.TrimSpace(cfg.HistoryDB) != "" {
		store, err = history.Open(cfg.HistoryDB)
		if err != nil {
			return err
		}
		recorder = history.NewAsyncRecorder(store, cfg.NotifyQueueSize)
		monitor.SetRecorder(recorder)
		logger.Info("告警历史: %s", store.Path())
	}

	follower := tail.New(cfg.FollowMode)
	logger.Info("日志跟随方式: %s", follower.Name())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return monitor.Run(gctx, follower, cfg.AccessLog)
	})
	if strings.TrimSpace(cfg.APIBind) != "" {
		apiServer := api.NewServer(cfg.APIBind, monitor, collector)
		apiServer.SetNotifyQueue(dispatcher)
		if store != nil {
			apiServer.SetHistory(store)
		}
		g.Go(func() error {
			return apiServer.Run(gctx)
		})
	}

	runErr := g.Wait()
	if ctx.Err() != nil {
		logger.Info("收到退出信号，正在关闭服务...")
	}
	shutdown(dispatcher, recorder, store, cfg.NotifyDeadline())
	if runErr != nil {
		logger.Error("监控异常退出: %v", runErr)
		return runErr
	}
	logger.Info("程序已退出")
	return nil
}

func parseFlags() (string, []string) {
	var configPath, envFiles string
	flag.StringVar(&configPath, "config", "", "配置文件路径 为空时只使用环境变量与默认值")
	flag.StringVar(&envFiles, "env", "", "逗号分隔的 .env 文件 为空时读取 ./.env 与 ~/.config/bluegreen-watch/.env")
	flag.Parse()

	var paths []string
	for _, path := range strings.Split(envFiles, ",") {
		if path = strings.TrimSpace(path); path != "" {
			paths = append(paths, path)
		}
	}
	return configPath, paths
}

func logConfig(cfg *models.Config) {
	logger.Info("[*] 监控日志: %s", cfg.AccessLog)
	logger.Info("[*] Slack 通道已配置: %v", cfg.SlackWebhookURL != "")
	if cfg.DingTalkWebhook != "" {
		logger.Info("[*] 钉钉通道已配置: true")
	}
	if !cfg.ChannelConfigured() {
		logger.Info("[*] 未配置告警通道 告警输出到标准输出")
	}
	logger.Info("[*] 错误率阈值: %s%%, 窗口: %d, 冷却: %ds", alert.FormatThreshold(cfg.ErrorRateThreshold), cfg.WindowSize, cfg.AlertCooldownSec)
	logger.Info("日志级别: %s", cfg.LogLevel)
	if cfg.LogFile != "" {
		logger.Info("日志文件: %s", cfg.LogFile)
	}
	logger.Info("通知工作池大小: %d, 队列大小: %d", cfg.NotifyWorkers, cfg.NotifyQueueSize)
	if cfg.APIBind != "" {
		logger.Info("状态接口: %s", cfg.APIBind)
	}
}

// shutdown 在检测流水线退出后 先等待在途通知 再写完历史队列 最后关闭历史库
func shutdown(dispatcher *notify.Dispatcher, recorder *history.AsyncRecorder, store *history.Store, notifyTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout+time.Second)
	defer cancel()
	if err := dispatcher.Shutdown(ctx); err != nil {
		logger.Warn("等待告警发送完成超时: %v", err)
	}
	if recorder != nil {
		if err := recorder.Close(ctx); err != nil {
			logger.Warn("等待告警历史写入超时: %v", err)
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Warn("关闭告警历史失败: %v", err)
		}
	}
}
