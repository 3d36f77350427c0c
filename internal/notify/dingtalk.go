package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// DingTalk 钉钉机器人。
type DingTalk struct {
	webhook string
	secret  string
	client  *http.Client
	now     func() time.Time
}

type dingTalkMessage struct {
	MsgType  string           `json:"msgtype"`
	Markdown dingTalkMarkdown `json:"markdown"`
}

type dingTalkMarkdown struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type dingTalkResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// NewDingTalk 创建钉钉机器人实例。
func NewDingTalk(webhook, secret string, timeout time.Duration) *DingTalk {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &DingTalk{
		webhook: strings.TrimSpace(webhook),
		secret:  strings.TrimSpace(secret),
		client:  &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// Name 返回通道名称
func (r *DingTalk) Name() string { return "dingtalk" }

// Notify 发送钉钉机器人消息。
func (r *DingTalk) Notify(ctx context.Context, msg Message) error {
	if r.webhook == "" {
		return fmt.Errorf("钉钉 webhook 为空")
	}

	jsonReq, err := json.Marshal(buildDingTalkMessage(msg))
	if err != nil {
		return fmt.Errorf("序列化钉钉消息失败: %w", err)
	}

	webhookURL, err := r.buildWebhookURL()
	if err != nil {
		return fmt.Errorf("构建钉钉 webhook URL 失败: %w", err)
	}
	return r.postMessage(ctx, webhookURL, jsonReq)
}

func buildDingTalkMessage(msg Message) dingTalkMessage {
	title := fmt.Sprintf("%s Alert", strings.ToUpper(string(msg.Level)))
	// 钉钉 markdown 需要两个换行才会分段
	body := strings.ReplaceAll(msg.Text, "\n", "\n\n")
	return dingTalkMessage{
		MsgType: "markdown",
		Markdown: dingTalkMarkdown{
			Title: title,
			Text:  fmt.Sprintf("### 🚨 %s\n\n%s\n\n> %s", title, body, slackFooter),
		},
	}
}

func (r *DingTalk) postMessage(ctx context.Context, webhookURL string, payload []byte) error {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("钉钉机器人 HTTP 状态码异常: %d", resp.StatusCode)
	}

	var responseBody dingTalkResponse
	if err := json.NewDecoder(resp.Body).Decode(&responseBody); err != nil {
		return fmt.Errorf("解析钉钉响应失败: %w", err)
	}
	if responseBody.ErrCode != 0 {
		return fmt.Errorf("钉钉机器人返回错误: %d %s", responseBody.ErrCode, responseBody.ErrMsg)
	}
	return nil
}

// 配置了 secret 时钉钉要求把 timestamp 和 sign 作为 query 参数拼到 webhook 上
func (r *DingTalk) buildWebhookURL() (string, error) {
	if r.secret == "" {
		return r.webhook, nil
	}

	timestamp := r.now().UnixMilli()
	sign := signDingTalk(timestamp, r.secret)

	parsedURL, err := url.Parse(r.webhook)
	if err != nil {
		return "", err
	}

	query := parsedURL.Query()
	query.Set("timestamp", fmt.Sprintf("%d", timestamp))
	query.Set("sign", sign)
	parsedURL.RawQuery = query.Encode()
	return parsedURL.String(), nil
}

func signDingTalk(timestamp int64, secret string) string {
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, secret)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
