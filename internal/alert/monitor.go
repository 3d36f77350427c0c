// 本文件用于访问日志检测流水线与日志跟随调度
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bluegreen-watch/internal/accesslog"
	"bluegreen-watch/internal/logger"
	"bluegreen-watch/internal/metrics"
	"bluegreen-watch/internal/notify"
	"bluegreen-watch/internal/tail"
)

const (
	defaultRestartBackoff    = time.Second
	defaultMaxRestartBackoff = 60 * time.Second
	defaultStableAfter       = time.Minute
	defaultWaitInterval      = 2 * time.Second
)

// Options 表示检测流水线参数
type Options struct {
	Threshold         float64 // 百分比 严格大于才告警
	WindowSize        int
	Cooldown          time.Duration
	WaitInterval      time.Duration
	RestartFollower   bool
	RestartBackoff    time.Duration
	MaxRestartBackoff time.Duration
	StableAfter       time.Duration // 跟随持续超过该时长后重置退避
}

// Monitor 持有单个日志流的全部检测状态
// HandleLine 只应在一个 goroutine 中调用 Dashboard 可并发读取
type Monitor struct {
	opts     Options
	window   *Window
	detector *FailoverDetector
	limiter  *Limiter
	state    *State
	sink     Sink
	recorder Recorder
	metrics  *metrics.Collector
	now      func() time.Time
}

type discardSink struct{}

func (discardSink) Submit(notify.Message) bool { return true }

// NewMonitor 创建检测流水线 sink 为空时丢弃消息
func NewMonitor(opts Options, sink Sink) *Monitor {
	if opts.WaitInterval <= 0 {
		opts.WaitInterval = defaultWaitInterval
	}
	if opts.RestartBackoff <= 0 {
		opts.RestartBackoff = defaultRestartBackoff
	}
	if opts.MaxRestartBackoff <= 0 {
		opts.MaxRestartBackoff = defaultMaxRestartBackoff
	}
	if opts.MaxRestartBackoff < opts.RestartBackoff {
		opts.MaxRestartBackoff = opts.RestartBackoff
	}
	if opts.StableAfter <= 0 {
		opts.StableAfter = defaultStableAfter
	}
	if sink == nil {
		sink = discardSink{}
	}
	window := NewWindow(opts.WindowSize)
	opts.WindowSize = window.Cap()
	return &Monitor{
		opts:     opts,
		window:   window,
		detector: NewFailoverDetector(),
		limiter:  NewLimiter(opts.Cooldown),
		state:    NewState(opts.Threshold, window.Cap()),
		sink:     sink,
		now:      time.Now,
	}
}

// SetRecorder 设置告警历史记录器
func (m *Monitor) SetRecorder(recorder Recorder) {
	m.recorder = recorder
}

// SetMetrics 设置指标收集器
func (m *Monitor) SetMetrics(collector *metrics.Collector) {
	m.metrics = collector
	m.metrics.SetWindow(0, m.window.Cap(), 0, false)
}

// Dashboard 输出告警面板数据 附带各类别冷却状态
func (m *Monitor) Dashboard() Dashboard {
	dashboard := m.state.Dashboard()
	now := m.now()
	for _, kind := range Kinds() {
		summary := CooldownSummary{Kind: string(kind)}
		if last, ok := m.limiter.LastFired(kind); ok {
			summary.LastFired = formatTime(last)
			summary.Remaining = m.limiter.Remaining(kind, now).Round(time.Second).String()
		}
		dashboard.Cooldowns = append(dashboard.Cooldowns, summary)
	}
	return dashboard
}

// HandleLine 处理一行访问日志 返回本行触发的告警决策
// 顺序固定为 写入窗口 检查池切换 检查错误率
func (m *Monitor) HandleLine(line string, now time.Time) []Decision {
	event, ok := accesslog.Parse(line)
	m.metrics.IncLine(ok)
	m.state.countLine(ok)
	if !ok {
		return nil
	}

	m.window.Record(event.Status)

	var decisions []Decision
	if change, changed := m.detector.Observe(event.Pool); changed {
		m.metrics.IncFailover()
		logger.Info("检测到上游池切换: %s → %s", change.From, change.To)
		decisions = append(decisions, m.decide(Decision{
			Kind:     KindFailover,
			At:       now,
			Failover: &change,
		}, func() string {
			return formatFailover(change, now)
		}))
	}

	rate, ready := m.window.Rate()
	m.metrics.SetWindow(m.window.Len(), m.window.Cap(), rate, ready)
	m.metrics.SetPool(event.Pool)
	m.state.updatePipeline(event.Pool, event.Release, m.window.Len(), rate, ready, now)

	if ready && rate > m.opts.Threshold {
		errCount, total := m.window.Errors(), m.window.Cap()
		decisions = append(decisions, m.decide(Decision{
			Kind:   KindErrorRate,
			At:     now,
			Rate:   rate,
			Errors: errCount,
			Total:  total,
		}, func() string {
			return formatErrorRate(rate, m.opts.Threshold, errCount, total, now)
		}))
	}

	logger.Debug("pool=%s release=%s status=%d", event.Pool, event.Release, event.Status)
	return decisions
}

// decide 经冷却门判定后提交告警 正文只在允许发送时生成
func (m *Monitor) decide(decision Decision, render func() string) Decision {
	decision.ID = uuid.NewString()
	decision.Level = levelFor(decision.Kind)

	if !m.limiter.Allow(decision.Kind, decision.At) {
		decision.Status = StatusSuppressed
		decision.Reason = fmt.Sprintf("冷却中 剩余 %s", m.limiter.Remaining(decision.Kind, decision.At).Round(time.Second))
		if decision.Failover != nil {
			decision.Message = fmt.Sprintf("%s → %s", decision.Failover.From, decision.Failover.To)
		}
	} else {
		decision.Message = render()
		msg := notify.Message{Text: decision.Message, Level: decision.Level, Time: decision.At}
		if m.sink.Submit(msg) {
			decision.Status = StatusSent
		} else {
			decision.Status = StatusDropped
			decision.Reason = "发送队列已满"
		}
	}

	m.metrics.ObserveAlert(string(decision.Kind), string(decision.Status))
	m.state.Record(decision)
	if m.recorder != nil && keepRecord(decision) {
		m.recorder.RecordDecision(decision)
	}
	return decision
}

// Run 等待日志文件出现并持续跟随 ctx 取消时返回 nil
// 跟随意外结束时按指数退避重启 关闭重启时返回错误
func (m *Monitor) Run(ctx context.Context, follower tail.Follower, path string) error {
	backoff := m.opts.RestartBackoff
	for {
		if err := tail.WaitForFile(ctx, path, m.opts.WaitInterval); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("等待日志文件失败: %w", err)
		}
		logger.Info("[✓] 开始跟随日志: %s (%s)", path, follower.Name())

		started := m.now()
		err := follower.Follow(ctx, path, func(line string) {
			m.HandleLine(line, m.now())
		})
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			err = tail.ErrFollowerExited
		} else if !errors.Is(err, tail.ErrFollowerExited) {
			err = fmt.Errorf("%w: %v", tail.ErrFollowerExited, err)
		}
		if !m.opts.RestartFollower {
			return fmt.Errorf("日志跟随中断: %w", err)
		}
		if m.now().Sub(started) >= m.opts.StableAfter {
			backoff = m.opts.RestartBackoff
		}
		logger.Warn("日志跟随中断 %s 后重启: %v", backoff, err)
		m.metrics.IncFollowerRestart()

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		backoff *= 2
		if backoff > m.opts.MaxRestartBackoff {
			backoff = m.opts.MaxRestartBackoff
		}
	}
}
