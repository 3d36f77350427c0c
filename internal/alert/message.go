package alert

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// formatFailover 生成池切换告警正文
func formatFailover(change Failover, now time.Time) string {
	return fmt.Sprintf("⚠️ Failover Detected: %s → %s\nTime: %s\nAction: Check health of %s container",
		change.From, change.To, now.Format(timeLayout), change.From)
}

// formatErrorRate 生成错误率告警正文
func formatErrorRate(rate, threshold float64, errors, total int, now time.Time) string {
	return fmt.Sprintf("🔥 High Error Rate Detected!\nError Rate: %.2f%% (threshold: %s%%)\nErrors: %d/%d requests\nTime: %s\nAction: Investigate upstream services",
		rate, FormatThreshold(threshold), errors, total, now.Format(timeLayout))
}

// FormatThreshold 阈值总是带小数部分 2 输出为 2.0 与运维文档中的写法一致
func FormatThreshold(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
