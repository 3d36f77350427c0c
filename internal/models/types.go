// 本文件用于定义配置与业务模型
package models

import (
	"strings"
	"time"
)

// Config 配置结构体
type Config struct {
	SlackWebhookURL    string  `yaml:"slack_webhook_url"`
	DingTalkWebhook    string  `yaml:"dingtalk_webhook"`
	DingTalkSecret     string  `yaml:"dingtalk_secret"`
	ErrorRateThreshold float64 `yaml:"error_rate_threshold"` // 百分比 2.0 表示 2%
	WindowSize         int     `yaml:"window_size"`
	AlertCooldownSec   int     `yaml:"alert_cooldown_sec"`
	AccessLog          string  `yaml:"access_log"`
	WaitInterval       string  `yaml:"wait_interval"`
	FollowMode         string  `yaml:"follow_mode"` // exec 或 poll
	FollowRestart      *bool   `yaml:"follow_restart"`
	NotifyTimeout      string  `yaml:"notify_timeout"`
	NotifyWorkers      int     `yaml:"notify_workers"`
	NotifyQueueSize    int     `yaml:"notify_queue_size"`
	LogLevel           string  `yaml:"log_level"`
	LogFile            string  `yaml:"log_file"`
	LogFormat          string  `yaml:"log_format"`
	APIBind            string  `yaml:"api_bind"`
	HistoryDB          string  `yaml:"history_db"`
}

// ChannelConfigured 返回是否配置了外部告警通道
func (c *Config) ChannelConfigured() bool {
	if c == nil {
		return false
	}
	return c.SlackWebhookURL != "" || c.DingTalkWebhook != ""
}

// RestartFollower 返回跟随进程退出后是否自动重启
func (c *Config) RestartFollower() bool {
	if c == nil || c.FollowRestart == nil {
		return true
	}
	return *c.FollowRestart
}

// LogEvent 表示一行访问日志中解析出的关键字段
type LogEvent struct {
	Pool    string
	Release string
	Status  int
}

// Cooldown 返回同类告警的最小间隔
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.AlertCooldownSec) * time.Second
}

// WaitEvery 返回等待日志文件出现的轮询间隔
func (c *Config) WaitEvery() time.Duration {
	return durationOr(c.WaitInterval, 2*time.Second)
}

// NotifyDeadline 返回单次外发通知的超时
func (c *Config) NotifyDeadline() time.Duration {
	return durationOr(c.NotifyTimeout, 5*time.Second)
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
