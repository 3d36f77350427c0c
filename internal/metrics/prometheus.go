// 本文件用于 Prometheus 指标聚合与导出 将运行时指标统一收口便于监控接入

package metrics

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector 聚合运行期指标，并以 Prometheus 文本格式输出。
type Collector struct {
	linesTotal       atomic.Uint64
	linesMatched     atomic.Uint64
	linesSkipped     atomic.Uint64
	failoverTotal    atomic.Uint64
	followerRestarts atomic.Uint64

	windowFill     atomic.Int64
	windowCapacity atomic.Int64
	errorRateBits  atomic.Uint64 // math.Float64bits 编码的百分比

	mu                 sync.RWMutex
	currentPool        string
	alertsByKindStatus map[alertKey]uint64
	notifyByOutcome    map[notifyKey]uint64
	notifyDurationSec  *histogram
}

type alertKey struct {
	kind   string
	status string
}

type notifyKey struct {
	channel string
	outcome string
}

type histogram struct {
	buckets []float64
	counts  []uint64 // 累计桶计数
	count   uint64
	sum     float64
}

var (
	globalCollector = NewCollector()
)

// Global 返回进程级全局指标收集器。
func Global() *Collector {
	return globalCollector
}

// NewCollector 创建指标收集器。
func NewCollector() *Collector {
	return &Collector{
		alertsByKindStatus: make(map[alertKey]uint64),
		notifyByOutcome:    make(map[notifyKey]uint64),
		notifyDurationSec:  newHistogram([]float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5}),
	}
}

func newHistogram(buckets []float64) *histogram {
	clean := make([]float64, 0, len(buckets))
	for _, bucket := range buckets {
		if bucket <= 0 {
			continue
		}
		clean = append(clean, bucket)
	}
	sort.Float64s(clean)
	return &histogram{
		buckets: clean,
		counts:  make([]uint64, len(clean)),
	}
}

func (h *histogram) observe(v float64) {
	if h == nil {
		return
	}
	for idx, bound := range h.buckets {
		if v <= bound {
			h.counts[idx]++
		}
	}
	h.count++
	h.sum += v
}

func (h *histogram) writePrometheus(builder *strings.Builder, metric string, labels map[string]string) {
	if h == nil {
		return
	}
	for idx, bound := range h.buckets {
		bucketLabels := mergeLabels(labels, map[string]string{
			"le": trimFloat(bound),
		})
		builder.WriteString(metric)
		builder.WriteString("_bucket")
		writeLabels(builder, bucketLabels)
		builder.WriteByte(' ')
		builder.WriteString(strconv.FormatUint(h.counts[idx], 10))
		builder.WriteByte('\n')
	}
	infLabels := mergeLabels(labels, map[string]string{
		"le": "+Inf",
	})
	builder.WriteString(metric)
	builder.WriteString("_bucket")
	writeLabels(builder, infLabels)
	builder.WriteByte(' ')
	builder.WriteString(strconv.FormatUint(h.count, 10))
	builder.WriteByte('\n')

	builder.WriteString(metric)
	builder.WriteString("_sum")
	writeLabels(builder, labels)
	builder.WriteByte(' ')
	builder.WriteString(trimFloat(h.sum))
	builder.WriteByte('\n')

	builder.WriteString(metric)
	builder.WriteString("_count")
	writeLabels(builder, labels)
	builder.WriteByte(' ')
	builder.WriteString(strconv.FormatUint(h.count, 10))
	builder.WriteByte('\n')
}

// IncLine 记录读取到一行日志
func (c *Collector) IncLine(matched bool) {
	if c == nil {
		return
	}
	c.linesTotal.Add(1)
	if matched {
		c.linesMatched.Add(1)
		return
	}
	c.linesSkipped.Add(1)
}

// SetWindow 更新滑动窗口填充情况与错误率
func (c *Collector) SetWindow(fill, capacity int, rate float64, rateReady bool) {
	if c == nil {
		return
	}
	c.windowFill.Store(int64(fill))
	c.windowCapacity.Store(int64(capacity))
	if rateReady {
		c.errorRateBits.Store(math.Float64bits(rate))
	}
}

// SetPool 更新当前上游池
func (c *Collector) SetPool(pool string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.currentPool = pool
	c.mu.Unlock()
}

// IncFailover 记录一次检测到的池切换 与是否告警无关
func (c *Collector) IncFailover() {
	if c == nil {
		return
	}
	c.failoverTotal.Add(1)
}

// ObserveAlert 记录一次告警决策
func (c *Collector) ObserveAlert(kind, status string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.alertsByKindStatus[alertKey{kind: normalizeMetricLabel(kind), status: normalizeMetricLabel(status)}]++
	c.mu.Unlock()
}

// ObserveNotify 记录一次通知投递
func (c *Collector) ObserveNotify(channel string, latency time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.mu.Lock()
	c.notifyByOutcome[notifyKey{channel: normalizeMetricLabel(channel), outcome: outcome}]++
	c.notifyDurationSec.observe(latency.Seconds())
	c.mu.Unlock()
}

// IncFollowerRestart 记录一次日志跟随重启
func (c *Collector) IncFollowerRestart() {
	if c == nil {
		return
	}
	c.followerRestarts.Add(1)
}

// ErrorRate 返回最近一次计算的错误率
func (c *Collector) ErrorRate() float64 {
	if c == nil {
		return 0
	}
	return math.Float64frombits(c.errorRateBits.Load())
}

// RenderPrometheus 输出 Prometheus 文本格式。
func (c *Collector) RenderPrometheus() string {
	if c == nil {
		return ""
	}
	builder := strings.Builder{}
	builder.Grow(2048)

	writeMetricHeader(&builder, "bgw_lines_total", "counter", "Total access log lines read.")
	writeCounter(&builder, "bgw_lines_total", c.linesTotal.Load(), nil)

	writeMetricHeader(&builder, "bgw_lines_matched_total", "counter", "Lines carrying pool/release/upstream_status fields.")
	writeCounter(&builder, "bgw_lines_matched_total", c.linesMatched.Load(), nil)

	writeMetricHeader(&builder, "bgw_lines_skipped_total", "counter", "Lines skipped because they did not match the record shape.")
	writeCounter(&builder, "bgw_lines_skipped_total", c.linesSkipped.Load(), nil)

	writeMetricHeader(&builder, "bgw_window_fill", "gauge", "Current number of statuses in the sliding window.")
	writeGaugeInt(&builder, "bgw_window_fill", c.windowFill.Load(), nil)

	writeMetricHeader(&builder, "bgw_window_capacity", "gauge", "Sliding window capacity.")
	writeGaugeInt(&builder, "bgw_window_capacity", c.windowCapacity.Load(), nil)

	writeMetricHeader(&builder, "bgw_error_rate_percent", "gauge", "Share of 5xx upstream statuses in the full window.")
	writeGaugeFloat(&builder, "bgw_error_rate_percent", c.ErrorRate(), nil)

	writeMetricHeader(&builder, "bgw_failover_total", "counter", "Pool changes observed, alerted or not.")
	writeCounter(&builder, "bgw_failover_total", c.failoverTotal.Load(), nil)

	writeMetricHeader(&builder, "bgw_follower_restarts_total", "counter", "Restarts of the log follower after unexpected exit.")
	writeCounter(&builder, "bgw_follower_restarts_total", c.followerRestarts.Load(), nil)

	alerts := make(map[alertKey]uint64)
	notifies := make(map[notifyKey]uint64)
	var durationCopy histogram
	c.mu.RLock()
	pool := c.currentPool
	for key, count := range c.alertsByKindStatus {
		alerts[key] = count
	}
	for key, count := range c.notifyByOutcome {
		notifies[key] = count
	}
	durationCopy = cloneHistogram(c.notifyDurationSec)
	c.mu.RUnlock()

	writeMetricHeader(&builder, "bgw_current_pool_info", "gauge", "Upstream pool most recently observed.")
	if pool != "" {
		writeGaugeInt(&builder, "bgw_current_pool_info", 1, map[string]string{"pool": pool})
	}

	writeMetricHeader(&builder, "bgw_alerts_total", "counter", "Alert decisions grouped by kind and status.")
	alertKeys := make([]alertKey, 0, len(alerts))
	for key := range alerts {
		alertKeys = append(alertKeys, key)
	}
	sort.Slice(alertKeys, func(i, j int) bool {
		if alertKeys[i].kind != alertKeys[j].kind {
			return alertKeys[i].kind < alertKeys[j].kind
		}
		return alertKeys[i].status < alertKeys[j].status
	})
	for _, key := range alertKeys {
		writeCounter(&builder, "bgw_alerts_total", alerts[key], map[string]string{
			"kind":   key.kind,
			"status": key.status,
		})
	}

	writeMetricHeader(&builder, "bgw_notify_total", "counter", "Notification deliveries grouped by channel and outcome.")
	notifyKeys := make([]notifyKey, 0, len(notifies))
	for key := range notifies {
		notifyKeys = append(notifyKeys, key)
	}
	sort.Slice(notifyKeys, func(i, j int) bool {
		if notifyKeys[i].channel != notifyKeys[j].channel {
			return notifyKeys[i].channel < notifyKeys[j].channel
		}
		return notifyKeys[i].outcome < notifyKeys[j].outcome
	})
	for _, key := range notifyKeys {
		writeCounter(&builder, "bgw_notify_total", notifies[key], map[string]string{
			"channel": key.channel,
			"outcome": key.outcome,
		})
	}

	writeMetricHeader(&builder, "bgw_notify_duration_seconds", "histogram", "Notification delivery latency in seconds.")
	durationCopy.writePrometheus(&builder, "bgw_notify_duration_seconds", nil)

	return builder.String()
}

func cloneHistogram(h *histogram) histogram {
	if h == nil {
		return histogram{}
	}
	copyHist := histogram{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		count:   h.count,
		sum:     h.sum,
	}
	return copyHist
}

func writeMetricHeader(builder *strings.Builder, metric, metricType, help string) {
	builder.WriteString("# HELP ")
	builder.WriteString(metric)
	builder.WriteByte(' ')
	builder.WriteString(help)
	builder.WriteByte('\n')
	builder.WriteString("# TYPE ")
	builder.WriteString(metric)
	builder.WriteByte(' ')
	builder.WriteString(metricType)
	builder.WriteByte('\n')
}

func writeCounter(builder *strings.Builder, metric string, value uint64, labels map[string]string) {
	builder.WriteString(metric)
	writeLabels(builder, labels)
	builder.WriteByte(' ')
	builder.WriteString(strconv.FormatUint(value, 10))
	builder.WriteByte('\n')
}

func writeGaugeInt(builder *strings.Builder, metric string, value int64, labels map[string]string) {
	builder.WriteString(metric)
	writeLabels(builder, labels)
	builder.WriteByte(' ')
	builder.WriteString(strconv.FormatInt(value, 10))
	builder.WriteByte('\n')
}

func writeGaugeFloat(builder *strings.Builder, metric string, value float64, labels map[string]string) {
	builder.WriteString(metric)
	writeLabels(builder, labels)
	builder.WriteByte(' ')
	builder.WriteString(trimFloat(value))
	builder.WriteByte('\n')
}

func writeLabels(builder *strings.Builder, labels map[string]string) {
	if len(labels) == 0 {
		return
	}
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	builder.WriteByte('{')
	for idx, key := range keys {
		if idx > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(key)
		builder.WriteString("=\"")
		builder.WriteString(escapeLabelValue(labels[key]))
		builder.WriteByte('"')
	}
	builder.WriteByte('}')
}

func mergeLabels(base, ext map[string]string) map[string]string {
	if len(base) == 0 && len(ext) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(ext))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range ext {
		merged[key] = value
	}
	return merged
}

func normalizeMetricLabel(value string) string {
	clean := strings.TrimSpace(strings.ToLower(value))
	if clean == "" {
		return "unknown"
	}
	clean = strings.ReplaceAll(clean, "\n", " ")
	clean = strings.ReplaceAll(clean, "\r", " ")
	clean = strings.ReplaceAll(clean, "\t", " ")
	clean = strings.Join(strings.Fields(clean), " ")
	if len(clean) > 120 {
		clean = clean[:120]
	}
	return clean
}

func escapeLabelValue(value string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\",
		`"`, `\"`,
		"\n", `\n`,
	)
	return replacer.Replace(value)
}

func trimFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

