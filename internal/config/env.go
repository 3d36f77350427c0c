// 本文件用于环境变量与 .env 文件的配置覆盖
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"bluegreen-watch/internal/models"
)

// envBindings 配置键到环境变量名的映射 保持与部署脚本一致的变量名
var envBindings = map[string]string{
	"slack_webhook_url":    "SLACK_WEBHOOK_URL",
	"dingtalk_webhook":     "DINGTALK_WEBHOOK",
	"dingtalk_secret":      "DINGTALK_SECRET",
	"error_rate_threshold": "ERROR_RATE_THRESHOLD",
	"window_size":          "WINDOW_SIZE",
	"alert_cooldown_sec":   "ALERT_COOLDOWN_SEC",
	"follow_mode":          "FOLLOW_MODE",
	"follow_restart":       "FOLLOW_RESTART",
	"log_level":            "LOG_LEVEL",
	"log_file":             "LOG_FILE",
	"log_format":           "LOG_FORMAT",
	"api_bind":             "API_BIND",
	"history_db":           "ALERT_HISTORY_DB",
}

// LoadEnvFiles 加载 .env 文件 已存在的环境变量不会被覆盖
func LoadEnvFiles(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
		if home, err := os.UserHomeDir(); err == nil {
			paths = append(paths, filepath.Join(home, ".config", "bluegreen-watch", ".env"))
		}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		_ = godotenv.Load(path)
	}
}

func newEnv() *viper.Viper {
	v := viper.New()
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	return v
}

// applyEnv 用环境变量覆盖配置 数值格式错误直接返回错误
func applyEnv(config *models.Config, v *viper.Viper) error {
	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = strings.TrimSpace(v.GetString(key))
		}
	}
	setString("slack_webhook_url", &config.SlackWebhookURL)
	setString("dingtalk_webhook", &config.DingTalkWebhook)
	setString("dingtalk_secret", &config.DingTalkSecret)
	setString("follow_mode", &config.FollowMode)
	setString("log_level", &config.LogLevel)
	setString("log_file", &config.LogFile)
	setString("log_format", &config.LogFormat)
	setString("api_bind", &config.APIBind)
	setString("history_db", &config.HistoryDB)

	if v.IsSet("error_rate_threshold") {
		val, err := cast.ToFloat64E(strings.TrimSpace(v.GetString("error_rate_threshold")))
		if err != nil {
			return fmt.Errorf("%w: ERROR_RATE_THRESHOLD 不是数字: %v", ErrInvalidConfig, err)
		}
		config.ErrorRateThreshold = val
	}
	if v.IsSet("window_size") {
		val, err := cast.ToIntE(strings.TrimSpace(v.GetString("window_size")))
		if err != nil {
			return fmt.Errorf("%w: WINDOW_SIZE 不是整数: %v", ErrInvalidConfig, err)
		}
		config.WindowSize = val
	}
	if v.IsSet("alert_cooldown_sec") {
		val, err := cast.ToIntE(strings.TrimSpace(v.GetString("alert_cooldown_sec")))
		if err != nil {
			return fmt.Errorf("%w: ALERT_COOLDOWN_SEC 不是整数: %v", ErrInvalidConfig, err)
		}
		config.AlertCooldownSec = val
	}
	if v.IsSet("follow_restart") {
		val, err := cast.ToBoolE(strings.TrimSpace(v.GetString("follow_restart")))
		if err != nil {
			return fmt.Errorf("%w: FOLLOW_RESTART 不是布尔值: %v", ErrInvalidConfig, err)
		}
		config.FollowRestart = &val
	}
	return nil
}
