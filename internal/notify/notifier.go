// Package notify 负责把已格式化的告警投递到外部通道
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level 表示告警级别 决定消息颜色
type Level string

const (
	LevelError    Level = "error"
	LevelWarning  Level = "warning"
	LevelInfo     Level = "info"
	LevelFailover Level = "failover"
)

// Message 表示一条待投递的告警
type Message struct {
	Text  string
	Level Level
	Time  time.Time
}

// Notifier 表示告警通知发送器
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
	Name() string
}

// Console 未配置外部通道时把告警打印到标准输出
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole 创建标准输出通知器 out 为空时使用 os.Stdout
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	return &Console{out: out}
}

// Notify 输出告警 总是成功
func (c *Console) Notify(_ context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, "[ALERT] %s\n", msg.Text)
	return nil
}

// Name 返回通道名称
func (c *Console) Name() string { return "console" }

// Set 组合多个外部通道
type Set struct {
	notifiers []Notifier
}

// NewSet 创建组合通知器 忽略 nil
func NewSet(notifiers ...Notifier) *Set {
	set := &Set{}
	for _, n := range notifiers {
		if n != nil {
			set.notifiers = append(set.notifiers, n)
		}
	}
	return set
}

// Notify 逐个通道发送 返回第一个错误
func (s *Set) Notify(ctx context.Context, msg Message) error {
	if s == nil {
		return nil
	}
	var firstErr error
	for _, n := range s.notifiers {
		if err := n.Notify(ctx, msg); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", n.Name(), err)
		}
	}
	return firstErr
}

// Name 返回组合后的通道名称
func (s *Set) Name() string {
	if s == nil || len(s.notifiers) == 0 {
		return "none"
	}
	names := make([]string, 0, len(s.notifiers))
	for _, n := range s.notifiers {
		names = append(names, n.Name())
	}
	return strings.Join(names, "+")
}

// Len 返回通道数量
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.notifiers)
}

// Options 描述外部通道配置
type Options struct {
	SlackWebhook    string
	DingTalkWebhook string
	DingTalkSecret  string
	Timeout         time.Duration
	Console         io.Writer
}

// Build 按配置构建通知器 未配置任何外部通道时退化为标准输出
func Build(opts Options) Notifier {
	set := NewSet()
	if strings.TrimSpace(opts.SlackWebhook) != "" {
		set.notifiers = append(set.notifiers, NewSlack(opts.SlackWebhook, opts.Timeout))
	}
	if strings.TrimSpace(opts.DingTalkWebhook) != "" {
		set.notifiers = append(set.notifiers, NewDingTalk(opts.DingTalkWebhook, opts.DingTalkSecret, opts.Timeout))
	}
	switch set.Len() {
	case 0:
		return NewConsole(opts.Console)
	case 1:
		return set.notifiers[0]
	default:
		return set
	}
}

// Nop 不做任何事 便于测试
type Nop struct{}

func (Nop) Notify(context.Context, Message) error { return nil }
func (Nop) Name() string                          { return "nop" }
