package alert

import (
	"sync"
	"time"
)

const maxDecisionRecords = 200

// Dashboard 表示告警控制台数据
type Dashboard struct {
	Stats     Stats             `json:"stats"`
	Pipeline  Pipeline          `json:"pipeline"`
	Cooldowns []CooldownSummary `json:"cooldowns"`
	Decisions []DecisionView    `json:"decisions"`
}

// Stats 表示告警统计
type Stats struct {
	Lines            uint64         `json:"lines"`
	Matched          uint64         `json:"matched"`
	Skipped          uint64         `json:"skipped"`
	Sent             int            `json:"sent"`
	Suppressed       int            `json:"suppressed"`
	Dropped          int            `json:"dropped"`
	SuppressedByKind map[string]int `json:"suppressedByKind"`
}

// Pipeline 表示检测流水线的即时状态
type Pipeline struct {
	Pool       string   `json:"pool"`
	Release    string   `json:"release"`
	WindowFill int      `json:"windowFill"`
	WindowSize int      `json:"windowSize"`
	ErrorRate  *float64 `json:"errorRate"` // 窗口未填满前为空
	Threshold  float64  `json:"threshold"`
	LastLine   string   `json:"lastLine"`
}

// CooldownSummary 表示单个告警类别的冷却状态
type CooldownSummary struct {
	Kind      string `json:"kind"`
	LastFired string `json:"lastFired"`
	Remaining string `json:"remaining"`
}

// DecisionView 表示告警列表项
type DecisionView struct {
	ID      string `json:"id"`
	Time    string `json:"time"`
	Kind    string `json:"kind"`
	Level   string `json:"level"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// State 维护告警决策运行态 供状态接口并发读取
type State struct {
	mu       sync.RWMutex
	records  []Decision
	stats    Stats
	pipeline Pipeline
}

// NewState 创建告警运行态
func NewState(threshold float64, windowSize int) *State {
	return &State{
		records: make([]Decision, 0, maxDecisionRecords),
		stats: Stats{
			SuppressedByKind: make(map[string]int),
		},
		pipeline: Pipeline{
			WindowSize: windowSize,
			Threshold:  threshold,
		},
	}
}

// Record 记录告警决策
// 冷却期内的错误率决策每行都会产生 只计数不入列表
func (s *State) Record(decision Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch decision.Status {
	case StatusSent:
		s.stats.Sent++
	case StatusSuppressed:
		s.stats.Suppressed++
		s.stats.SuppressedByKind[string(decision.Kind)]++
	case StatusDropped:
		s.stats.Dropped++
	}
	if !keepRecord(decision) {
		return
	}
	s.records = append(s.records, decision)
	if len(s.records) > maxDecisionRecords {
		s.records = append([]Decision(nil), s.records[len(s.records)-maxDecisionRecords:]...)
	}
}

// countLine 记录一行日志是否命中
func (s *State) countLine(matched bool) {
	s.mu.Lock()
	s.stats.Lines++
	if matched {
		s.stats.Matched++
	} else {
		s.stats.Skipped++
	}
	s.mu.Unlock()
}

// updatePipeline 刷新流水线即时状态
func (s *State) updatePipeline(pool, release string, fill int, rate float64, ready bool, at time.Time) {
	s.mu.Lock()
	s.pipeline.Pool = pool
	s.pipeline.Release = release
	s.pipeline.WindowFill = fill
	if ready {
		r := rate
		s.pipeline.ErrorRate = &r
	}
	s.pipeline.LastLine = formatTime(at)
	s.mu.Unlock()
}

// Dashboard 输出告警面板数据 最新的决策在前
func (s *State) Dashboard() Dashboard {
	s.mu.RLock()
	records := append([]Decision(nil), s.records...)
	stats := s.stats
	stats.SuppressedByKind = make(map[string]int, len(s.stats.SuppressedByKind))
	for kind, count := range s.stats.SuppressedByKind {
		stats.SuppressedByKind[kind] = count
	}
	pipeline := s.pipeline
	s.mu.RUnlock()

	decisions := make([]DecisionView, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		decisions = append(decisions, DecisionView{
			ID:      rec.ID,
			Time:    formatTime(rec.At),
			Kind:    string(rec.Kind),
			Level:   string(rec.Level),
			Status:  string(rec.Status),
			Message: rec.Message,
			Reason:  rec.Reason,
		})
	}
	return Dashboard{
		Stats:     stats,
		Pipeline:  pipeline,
		Decisions: decisions,
	}
}

// keepRecord 判断决策是否进入列表与历史
func keepRecord(decision Decision) bool {
	return !(decision.Kind == KindErrorRate && decision.Status == StatusSuppressed)
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Format(timeLayout)
}
