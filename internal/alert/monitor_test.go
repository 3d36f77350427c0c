package alert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bluegreen-watch/internal/logger"
	"bluegreen-watch/internal/metrics"
	"bluegreen-watch/internal/notify"
	"bluegreen-watch/internal/tail"
)

func TestMain(m *testing.M) {
	logger.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type captureSink struct {
	mu       sync.Mutex
	messages []notify.Message
	reject   bool
}

func (s *captureSink) Submit(msg notify.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject {
		return false
	}
	s.messages = append(s.messages, msg)
	return true
}

func (s *captureSink) all() []notify.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Message(nil), s.messages...)
}

type captureRecorder struct {
	decisions []Decision
}

func (r *captureRecorder) RecordDecision(d Decision) {
	r.decisions = append(r.decisions, d)
}

func logLine(pool string, status int) string {
	return fmt.Sprintf(`10.0.0.1 - - [01/Jan/2025:00:00:00 +0000] "GET / HTTP/1.1" 200 12 pool=%s release=%s-v1 upstream_status=%d upstream=10.0.0.2:80`, pool, pool, status)
}

func testOptions() Options {
	return Options{
		Threshold:  2.0,
		WindowSize: 200,
		Cooldown:   300 * time.Second,
	}
}

func TestHandleLineFirstErrorRateAlert(t *testing.T) {
	sink := &captureSink{}
	m := NewMonitor(testOptions(), sink)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local)

	firstAlert := -1
	for i := 0; i < 260; i++ {
		status := 200
		if i >= 200 {
			status = 500
		}
		for _, d := range m.HandleLine(logLine("blue", status), base.Add(time.Duration(i)*time.Millisecond)) {
			if d.Kind == KindErrorRate && d.Status == StatusSent && firstAlert < 0 {
				firstAlert = i
			}
		}
	}
	assert.Equal(t, 204, firstAlert, "第 5 个 500 时错误率首次超过阈值")

	messages := sink.all()
	require.Len(t, messages, 1, "冷却期内只发送一次")
	assert.Equal(t, notify.LevelError, messages[0].Level)
	assert.Contains(t, messages[0].Text, "Error Rate: 2.50% (threshold: 2.0%)")
	assert.Contains(t, messages[0].Text, "Errors: 5/200 requests")

	stats := m.Dashboard().Stats
	assert.Equal(t, 1, stats.Sent)
	assert.Equal(t, 55, stats.Suppressed)
	assert.Equal(t, 55, stats.SuppressedByKind[string(KindErrorRate)])
	assert.Equal(t, uint64(260), stats.Matched)
}

func TestHandleLineThresholdIsStrict(t *testing.T) {
	sink := &captureSink{}
	opts := testOptions()
	opts.WindowSize = 5
	opts.Threshold = 40
	m := NewMonitor(opts, sink)
	now := time.Now()
	for _, status := range []int{200, 200, 500, 500, 200} {
		m.HandleLine(logLine("blue", status), now)
	}
	assert.Empty(t, sink.all(), "错误率等于阈值时不告警")

	m.HandleLine(logLine("blue", 502), now)
	assert.Len(t, sink.all(), 1)
}

func TestHandleLineFailoverSequence(t *testing.T) {
	sink := &captureSink{}
	opts := testOptions()
	opts.Cooldown = 0
	m := NewMonitor(opts, sink)
	base := time.Now()

	var fired []int
	for i, pool := range []string{"blue", "blue", "green", "green", "blue"} {
		for _, d := range m.HandleLine(logLine(pool, 200), base.Add(time.Duration(i)*time.Second)) {
			if d.Kind == KindFailover {
				fired = append(fired, i)
			}
		}
	}
	assert.Equal(t, []int{2, 4}, fired)

	messages := sink.all()
	require.Len(t, messages, 2)
	assert.True(t, strings.HasPrefix(messages[0].Text, "⚠️ Failover Detected: blue → green\n"))
	assert.Contains(t, messages[0].Text, "Action: Check health of blue container")
	assert.Equal(t, notify.LevelFailover, messages[0].Level)
	assert.True(t, strings.HasPrefix(messages[1].Text, "⚠️ Failover Detected: green → blue\n"))
}

func TestHandleLineSuppressedFailoverStillAdvancesPool(t *testing.T) {
	sink := &captureSink{}
	recorder := &captureRecorder{}
	m := NewMonitor(testOptions(), sink)
	m.SetRecorder(recorder)
	base := time.Now()

	m.HandleLine(logLine("blue", 200), base)
	m.HandleLine(logLine("green", 200), base.Add(time.Second))
	suppressed := m.HandleLine(logLine("blue", 200), base.Add(2*time.Second))
	require.Len(t, suppressed, 1)
	assert.Equal(t, StatusSuppressed, suppressed[0].Status)
	assert.Equal(t, "green → blue", suppressed[0].Message)

	// 池已切回 blue 再次出现 blue 不应产生新的切换
	assert.Empty(t, m.HandleLine(logLine("blue", 200), base.Add(400*time.Second)))

	again := m.HandleLine(logLine("green", 200), base.Add(401*time.Second))
	require.Len(t, again, 1)
	assert.Equal(t, StatusSent, again[0].Status)
	assert.Contains(t, again[0].Message, "blue → green")

	assert.Len(t, sink.all(), 2)
	require.Len(t, recorder.decisions, 3, "切换告警无论是否抑制都写入历史")
	assert.Equal(t, StatusSuppressed, recorder.decisions[1].Status)
}

func TestHandleLineIgnoresUnmatchedLines(t *testing.T) {
	m := NewMonitor(testOptions(), &captureSink{})
	collector := metrics.NewCollector()
	m.SetMetrics(collector)

	assert.Nil(t, m.HandleLine("GET /health 200", time.Now()))
	assert.Nil(t, m.HandleLine("pool=blue release=v1 upstream_status=abc", time.Now()))
	assert.Equal(t, 0, m.window.Len())
	_, seen := m.detector.Current()
	assert.False(t, seen)

	stats := m.Dashboard().Stats
	assert.Equal(t, uint64(2), stats.Skipped)
	assert.Contains(t, collector.RenderPrometheus(), "bgw_lines_skipped_total 2")
}

func TestHandleLineFailoverRunsBeforeErrorRate(t *testing.T) {
	sink := &captureSink{}
	opts := testOptions()
	opts.WindowSize = 1
	opts.Threshold = 0
	m := NewMonitor(opts, sink)
	now := time.Now()

	m.HandleLine(logLine("blue", 200), now)
	decisions := m.HandleLine(logLine("green", 502), now.Add(time.Second))
	require.Len(t, decisions, 2)
	assert.Equal(t, KindFailover, decisions[0].Kind)
	assert.Equal(t, KindErrorRate, decisions[1].Kind)
}

func TestHandleLineDroppedWhenSinkFull(t *testing.T) {
	sink := &captureSink{reject: true}
	recorder := &captureRecorder{}
	m := NewMonitor(testOptions(), sink)
	m.SetRecorder(recorder)
	now := time.Now()

	m.HandleLine(logLine("blue", 200), now)
	decisions := m.HandleLine(logLine("green", 200), now)
	require.Len(t, decisions, 1)
	assert.Equal(t, StatusDropped, decisions[0].Status)
	assert.NotEmpty(t, decisions[0].ID)
	assert.Equal(t, 1, m.Dashboard().Stats.Dropped)
	require.Len(t, recorder.decisions, 1)
}

func TestDashboardReportsPipelineAndCooldowns(t *testing.T) {
	m := NewMonitor(testOptions(), &captureSink{})
	base := time.Now()
	m.now = func() time.Time { return base.Add(100 * time.Second) }

	m.HandleLine(logLine("blue", 200), base)
	m.HandleLine(logLine("green", 200), base)

	dashboard := m.Dashboard()
	assert.Equal(t, "green", dashboard.Pipeline.Pool)
	assert.Equal(t, "green-v1", dashboard.Pipeline.Release)
	assert.Equal(t, 2, dashboard.Pipeline.WindowFill)
	assert.Equal(t, 200, dashboard.Pipeline.WindowSize)
	assert.Nil(t, dashboard.Pipeline.ErrorRate)
	require.Len(t, dashboard.Decisions, 1)
	assert.Equal(t, string(KindFailover), dashboard.Decisions[0].Kind)

	require.Len(t, dashboard.Cooldowns, 2)
	assert.Equal(t, string(KindFailover), dashboard.Cooldowns[0].Kind)
	assert.Equal(t, "3m20s", dashboard.Cooldowns[0].Remaining)
	assert.Empty(t, dashboard.Cooldowns[1].LastFired)
}

type scriptedFollower struct {
	mu    sync.Mutex
	calls int
	lines []string
	err   error
	block bool
}

func (f *scriptedFollower) Name() string { return "scripted" }

func (f *scriptedFollower) Follow(ctx context.Context, _ string, onLine func(string)) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	for _, line := range f.lines {
		onLine(line)
	}
	if f.block {
		<-ctx.Done()
		return nil
	}
	return f.err
}

func (f *scriptedFollower) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func tempLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "access.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	return path
}

func TestRunReturnsNilOnCancel(t *testing.T) {
	sink := &captureSink{}
	m := NewMonitor(testOptions(), sink)
	follower := &scriptedFollower{
		lines: []string{logLine("blue", 200), logLine("green", 200)},
		block: true,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, follower, tempLog(t)) }()

	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("取消后 Run 未返回")
	}
}

func TestRunRestartsFollowerWithBackoff(t *testing.T) {
	opts := testOptions()
	opts.RestartFollower = true
	opts.RestartBackoff = 5 * time.Millisecond
	opts.MaxRestartBackoff = 20 * time.Millisecond
	m := NewMonitor(opts, &captureSink{})
	collector := metrics.NewCollector()
	m.SetMetrics(collector)
	follower := &scriptedFollower{err: errors.New("tail: exit status 1")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, follower, tempLog(t)) }()

	require.Eventually(t, func() bool { return follower.callCount() >= 3 }, 3*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
	assert.Contains(t, collector.RenderPrometheus(), "bgw_follower_restarts_total")
}

func TestRunFailsWhenRestartDisabled(t *testing.T) {
	opts := testOptions()
	opts.RestartFollower = false
	m := NewMonitor(opts, &captureSink{})
	follower := &scriptedFollower{}

	err := m.Run(context.Background(), follower, tempLog(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, tail.ErrFollowerExited)
	assert.Equal(t, 1, follower.callCount())
}
