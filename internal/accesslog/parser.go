// Package accesslog 从 nginx 访问日志行中提取上游池、发布版本与上游状态码
package accesslog

import (
	"regexp"
	"strconv"

	"bluegreen-watch/internal/models"
)

// linePattern 字段顺序固定 字段之间为单个空格 可出现在行内任意位置
var linePattern = regexp.MustCompile(
	`pool=(?P<pool>\w+) ` +
		`release=(?P<release>[\w\-.]+) ` +
		`upstream_status=(?P<upstream_status>\d+)`,
)

var (
	poolIndex    = linePattern.SubexpIndex("pool")
	releaseIndex = linePattern.SubexpIndex("release")
	statusIndex  = linePattern.SubexpIndex("upstream_status")
)

// Parse 解析单行日志 未命中或状态码无法转换时返回 false
func Parse(line string) (models.LogEvent, bool) {
	match := linePattern.FindStringSubmatch(line)
	if match == nil {
		return models.LogEvent{}, false
	}
	// \d+ 仍可能超出 int 范围 此时按未命中处理
	status, err := strconv.Atoi(match[statusIndex])
	if err != nil {
		return models.LogEvent{}, false
	}
	return models.LogEvent{
		Pool:    match[poolIndex],
		Release: match[releaseIndex],
		Status:  status,
	}, true
}
