package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"bluegreen-watch/internal/models"
	"bluegreen-watch/internal/tail"
)

const (
	// DefaultAccessLog 为固定的 nginx 访问日志路径 环境变量不可覆盖
	DefaultAccessLog = "/var/log/nginx/access.log"

	FollowModeExec = tail.ModeExec
	FollowModePoll = tail.ModePoll
)

// ErrInvalidConfig 表示配置校验失败
var ErrInvalidConfig = errors.New("配置无效")

// Default 返回带默认值的配置
func Default() *models.Config {
	return &models.Config{
		ErrorRateThreshold: 2.0,
		WindowSize:         200,
		AlertCooldownSec:   300,
		AccessLog:          DefaultAccessLog,
		WaitInterval:       "2s",
		FollowMode:         FollowModeExec,
		NotifyTimeout:      "5s",
		NotifyWorkers:      2,
		NotifyQueueSize:    64,
		LogLevel:           "info",
		LogFormat:          "console",
	}
}

// LoadConfig 加载配置 configFile 为空时只使用默认值与环境变量
func LoadConfig(configFile string) (*models.Config, error) {
	config := Default()

	if strings.TrimSpace(configFile) != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	if err := applyEnv(config, newEnv()); err != nil {
		return nil, err
	}

	// 设置默认值
	if strings.TrimSpace(config.AccessLog) == "" {
		config.AccessLog = DefaultAccessLog
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.LogFormat == "" {
		config.LogFormat = "console"
	}
	if config.FollowMode == "" {
		config.FollowMode = FollowModeExec
	}
	if config.NotifyWorkers <= 0 {
		config.NotifyWorkers = 2
	}
	if config.NotifyQueueSize <= 0 {
		config.NotifyQueueSize = 64
	}

	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// ValidateConfig 验证配置
func ValidateConfig(config *models.Config) error {
	if config == nil {
		return fmt.Errorf("%w: 配置为空", ErrInvalidConfig)
	}
	if config.ErrorRateThreshold < 0 {
		return fmt.Errorf("%w: 错误率阈值不能为负数: %v", ErrInvalidConfig, config.ErrorRateThreshold)
	}
	if config.WindowSize < 1 {
		return fmt.Errorf("%w: 滑动窗口大小必须大于零: %d", ErrInvalidConfig, config.WindowSize)
	}
	if config.AlertCooldownSec < 0 {
		return fmt.Errorf("%w: 告警冷却时间不能为负数: %d", ErrInvalidConfig, config.AlertCooldownSec)
	}
	switch config.FollowMode {
	case FollowModeExec, FollowModePoll:
	default:
		return fmt.Errorf("%w: 未知的跟随模式: %s", ErrInvalidConfig, config.FollowMode)
	}
	for name, raw := range map[string]string{
		"wait_interval":  config.WaitInterval,
		"notify_timeout": config.NotifyTimeout,
	} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: %s 无效: %s", ErrInvalidConfig, name, raw)
		}
	}
	switch strings.ToLower(config.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: 未知的日志级别: %s", ErrInvalidConfig, config.LogLevel)
	}
	switch strings.ToLower(config.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("%w: 未知的日志格式: %s", ErrInvalidConfig, config.LogFormat)
	}
	return nil
}
