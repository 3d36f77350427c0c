// 本文件用于定义告警相关的数据结构
package alert

import (
	"time"

	"bluegreen-watch/internal/notify"
)

// Kind 表示告警类别 每个类别独立冷却
type Kind string

const (
	// KindFailover 表示上游池切换
	KindFailover Kind = "failover"
	// KindErrorRate 表示滑动窗口错误率超阈值
	KindErrorRate Kind = "error_rate"
)

// Kinds 返回全部告警类别
func Kinds() []Kind {
	return []Kind{KindFailover, KindErrorRate}
}

// DecisionStatus 表示告警决策状态
type DecisionStatus string

const (
	// StatusSent 表示已提交发送
	StatusSent DecisionStatus = "sent"
	// StatusSuppressed 表示处于冷却期被抑制
	StatusSuppressed DecisionStatus = "suppressed"
	// StatusDropped 表示发送队列已满被丢弃
	StatusDropped DecisionStatus = "dropped"
)

// Failover 表示一次上游池切换
type Failover struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Decision 表示一次告警条件成立后的处理结果
type Decision struct {
	ID       string
	Kind     Kind
	Level    notify.Level
	Status   DecisionStatus
	Reason   string
	Message  string
	At       time.Time
	Failover *Failover
	Rate     float64
	Errors   int
	Total    int
}

// Sink 接收已格式化的告警消息 实现方不得阻塞调用方
type Sink interface {
	Submit(msg notify.Message) bool
}

// Recorder 记录告警决策 如 SQLite 告警历史
type Recorder interface {
	RecordDecision(decision Decision)
}

// levelFor 返回告警类别对应的通知级别
func levelFor(kind Kind) notify.Level {
	switch kind {
	case KindFailover:
		return notify.LevelFailover
	case KindErrorRate:
		return notify.LevelError
	default:
		return notify.LevelInfo
	}
}
