package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	defaultTimeout = 5 * time.Second
	slackFooter    = "Blue/Green Monitoring"
	defaultColor   = "#808080"
)

var levelColors = map[Level]string{
	LevelError:    "#ff0000",
	LevelWarning:  "#ffa500",
	LevelInfo:     "#00ff00",
	LevelFailover: "#ffff00",
}

// Slack 通过 incoming webhook 发送告警
type Slack struct {
	webhook string
	client  *http.Client
	now     func() time.Time
}

type slackPayload struct {
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string `json:"color"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	Footer string `json:"footer"`
	TS     int64  `json:"ts"`
}

// NewSlack 创建 Slack 通知器 timeout 为单次请求上限
func NewSlack(webhook string, timeout time.Duration) *Slack {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Slack{
		webhook: strings.TrimSpace(webhook),
		client:  &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// Name 返回通道名称
func (s *Slack) Name() string { return "slack" }

// Notify 发送告警 非 2xx 视为失败
func (s *Slack) Notify(ctx context.Context, msg Message) error {
	if s.webhook == "" {
		return fmt.Errorf("slack webhook 为空")
	}
	body, err := json.Marshal(buildSlackPayload(msg, s.now()))
	if err != nil {
		return fmt.Errorf("序列化 slack 消息失败: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook HTTP 状态码异常: %d", resp.StatusCode)
	}
	return nil
}

func buildSlackPayload(msg Message, now time.Time) slackPayload {
	return slackPayload{
		Attachments: []slackAttachment{{
			Color:  ColorFor(msg.Level),
			Title:  fmt.Sprintf("🚨 %s Alert", strings.ToUpper(string(msg.Level))),
			Text:   msg.Text,
			Footer: slackFooter,
			TS:     now.Unix(),
		}},
	}
}

// ColorFor 返回级别对应的颜色 未知级别为灰色
func ColorFor(level Level) string {
	if color, ok := levelColors[level]; ok {
		return color
	}
	return defaultColor
}
