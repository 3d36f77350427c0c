package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"bluegreen-watch/internal/models"
)

// clearEnv 清空所有绑定的环境变量 避免宿主环境干扰
func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range envBindings {
		t.Setenv(env, "")
	}
}

// 覆盖配置加载流程
func TestLoadConfig(t *testing.T) {
	clearEnv(t)
	tempConfig := `
slack_webhook_url: "https://hooks.slack.com/services/T000/B000/XXXX"
dingtalk_webhook: "https://oapi.dingtalk.com/robot/send?access_token=test-token"
dingtalk_secret: "test-secret"
error_rate_threshold: 5.5
window_size: 50
alert_cooldown_sec: 60
access_log: "/tmp/access.log"
wait_interval: "1s"
follow_mode: "poll"
follow_restart: false
notify_timeout: "3s"
notify_workers: 4
notify_queue_size: 16
log_level: "debug"
log_file: "/var/log/test.log"
log_format: "json"
api_bind: ":9000"
history_db: "/tmp/history.db"
`
	configPath := writeTempConfig(t, tempConfig)

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if config.SlackWebhookURL != "https://hooks.slack.com/services/T000/B000/XXXX" {
		t.Errorf("SlackWebhookURL 实际 %s", config.SlackWebhookURL)
	}
	if config.DingTalkSecret != "test-secret" {
		t.Errorf("DingTalkSecret 期望 test-secret, 实际 %s", config.DingTalkSecret)
	}
	if config.ErrorRateThreshold != 5.5 {
		t.Errorf("ErrorRateThreshold 期望 5.5, 实际 %v", config.ErrorRateThreshold)
	}
	if config.WindowSize != 50 {
		t.Errorf("WindowSize 期望 50, 实际 %d", config.WindowSize)
	}
	if config.AlertCooldownSec != 60 {
		t.Errorf("AlertCooldownSec 期望 60, 实际 %d", config.AlertCooldownSec)
	}
	if config.AccessLog != "/tmp/access.log" {
		t.Errorf("AccessLog 期望 /tmp/access.log, 实际 %s", config.AccessLog)
	}
	if config.FollowMode != FollowModePoll {
		t.Errorf("FollowMode 期望 poll, 实际 %s", config.FollowMode)
	}
	if config.RestartFollower() {
		t.Errorf("RestartFollower 期望 false")
	}
	if config.NotifyDeadline().Seconds() != 3 {
		t.Errorf("NotifyDeadline 期望 3s, 实际 %s", config.NotifyDeadline())
	}
	if config.WaitEvery().Seconds() != 1 {
		t.Errorf("WaitEvery 期望 1s, 实际 %s", config.WaitEvery())
	}
	if config.NotifyWorkers != 4 || config.NotifyQueueSize != 16 {
		t.Errorf("通知工作池配置异常: workers=%d queue=%d", config.NotifyWorkers, config.NotifyQueueSize)
	}
	if config.LogLevel != "debug" || config.LogFormat != "json" {
		t.Errorf("日志配置异常: level=%s format=%s", config.LogLevel, config.LogFormat)
	}
	if config.APIBind != ":9000" {
		t.Errorf("APIBind 期望 :9000, 实际 %s", config.APIBind)
	}
	if config.HistoryDB != "/tmp/history.db" {
		t.Errorf("HistoryDB 期望 /tmp/history.db, 实际 %s", config.HistoryDB)
	}
	if !config.ChannelConfigured() {
		t.Errorf("ChannelConfigured 期望 true")
	}
}

func TestLoadConfigWithDefaults(t *testing.T) {
	clearEnv(t)

	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("加载默认配置失败: %v", err)
	}
	if config.ErrorRateThreshold != 2.0 {
		t.Errorf("ErrorRateThreshold 期望 2.0, 实际 %v", config.ErrorRateThreshold)
	}
	if config.WindowSize != 200 {
		t.Errorf("WindowSize 期望 200, 实际 %d", config.WindowSize)
	}
	if config.AlertCooldownSec != 300 {
		t.Errorf("AlertCooldownSec 期望 300, 实际 %d", config.AlertCooldownSec)
	}
	if config.Cooldown().Seconds() != 300 {
		t.Errorf("Cooldown 期望 300s, 实际 %s", config.Cooldown())
	}
	if config.AccessLog != DefaultAccessLog {
		t.Errorf("AccessLog 期望 %s, 实际 %s", DefaultAccessLog, config.AccessLog)
	}
	if config.FollowMode != FollowModeExec {
		t.Errorf("FollowMode 期望 exec, 实际 %s", config.FollowMode)
	}
	if !config.RestartFollower() {
		t.Errorf("RestartFollower 默认应为 true")
	}
	if config.ChannelConfigured() {
		t.Errorf("默认不应配置告警通道")
	}
	if config.WaitEvery().Seconds() != 2 || config.NotifyDeadline().Seconds() != 5 {
		t.Errorf("默认间隔异常: wait=%s notify=%s", config.WaitEvery(), config.NotifyDeadline())
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("显式指定的配置文件不存在时应返回错误")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	clearEnv(t)
	configPath := writeTempConfig(t, "window_size: 50\nerror_rate_threshold: 1.0\n")
	t.Setenv("SLACK_WEBHOOK_URL", "  https://hooks.slack.com/services/env  ")
	t.Setenv("ERROR_RATE_THRESHOLD", "3.5")
	t.Setenv("WINDOW_SIZE", "100")
	t.Setenv("ALERT_COOLDOWN_SEC", "0")
	t.Setenv("FOLLOW_RESTART", "false")
	t.Setenv("FOLLOW_MODE", "poll")

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if config.SlackWebhookURL != "https://hooks.slack.com/services/env" {
		t.Errorf("SlackWebhookURL 应被环境变量覆盖并去除空白, 实际 %q", config.SlackWebhookURL)
	}
	if config.ErrorRateThreshold != 3.5 {
		t.Errorf("ErrorRateThreshold 期望 3.5, 实际 %v", config.ErrorRateThreshold)
	}
	if config.WindowSize != 100 {
		t.Errorf("WindowSize 期望 100, 实际 %d", config.WindowSize)
	}
	if config.AlertCooldownSec != 0 {
		t.Errorf("AlertCooldownSec 期望 0, 实际 %d", config.AlertCooldownSec)
	}
	if config.RestartFollower() {
		t.Errorf("FOLLOW_RESTART=false 应关闭自动重启")
	}
	if config.FollowMode != FollowModePoll {
		t.Errorf("FollowMode 期望 poll, 实际 %s", config.FollowMode)
	}
}

func TestApplyEnvRejectsMalformedNumbers(t *testing.T) {
	cases := map[string]string{
		"ERROR_RATE_THRESHOLD": "two",
		"WINDOW_SIZE":          "lots",
		"ALERT_COOLDOWN_SEC":   "5m",
		"FOLLOW_RESTART":       "maybe",
	}
	for env, value := range cases {
		t.Run(env, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(env, value)
			_, err := LoadConfig("")
			if err == nil {
				t.Fatalf("%s=%s 应加载失败", env, value)
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("错误应包装 ErrInvalidConfig, 实际 %v", err)
			}
		})
	}
}

func TestValidateConfig(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		if err := ValidateConfig(Default()); err != nil {
			t.Fatalf("默认配置验证失败: %v", err)
		}
	})

	invalid := map[string]func(c *models.Config){
		"negative threshold": func(c *models.Config) { c.ErrorRateThreshold = -1 },
		"zero window":        func(c *models.Config) { c.WindowSize = 0 },
		"negative cooldown":  func(c *models.Config) { c.AlertCooldownSec = -5 },
		"unknown follow":     func(c *models.Config) { c.FollowMode = "inotify" },
		"bad wait interval":  func(c *models.Config) { c.WaitInterval = "soon" },
		"zero timeout":       func(c *models.Config) { c.NotifyTimeout = "0s" },
		"invalid log level":  func(c *models.Config) { c.LogLevel = "infos" },
		"invalid log format": func(c *models.Config) { c.LogFormat = "xml" },
	}
	for name, mutate := range invalid {
		t.Run(name, func(t *testing.T) {
			config := Default()
			mutate(config)
			if err := ValidateConfig(config); err == nil {
				t.Fatal("无效配置应该验证失败")
			}
		})
	}
}

func TestLoadEnvFilesDoesNotOverride(t *testing.T) {
	clearEnv(t)
	envPath := filepath.Join(t.TempDir(), ".env")
	content := "WINDOW_SIZE=25\nSLACK_WEBHOOK_URL=https://hooks.slack.com/services/file\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("写入 .env 失败: %v", err)
	}
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/process")
	// 已存在的空变量同样不会被 .env 覆盖 这里先移除
	_ = os.Unsetenv("WINDOW_SIZE")

	LoadEnvFiles(envPath)

	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if config.WindowSize != 25 {
		t.Errorf("WindowSize 应来自 .env, 实际 %d", config.WindowSize)
	}
	if config.SlackWebhookURL != "https://hooks.slack.com/services/process" {
		t.Errorf("进程环境变量不应被 .env 覆盖, 实际 %s", config.SlackWebhookURL)
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}
