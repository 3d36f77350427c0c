// 本文件用于定义日志跟随器接口与选择逻辑
package tail

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"bluegreen-watch/internal/logger"
)

// 跟随模式 与配置项 follow_mode 的取值一致
const (
	ModeExec = "exec"
	ModePoll = "poll"
)

// ErrFollowerExited 表示跟随在未取消的情况下结束
var ErrFollowerExited = errors.New("日志跟随意外结束")

// Follower 跟随单个文件的新增行
// Follow 阻塞直到 ctx 取消(返回 nil)或跟随意外结束(返回错误)
// onLine 在调用方 goroutine 中按顺序回调
type Follower interface {
	Follow(ctx context.Context, path string, onLine func(line string)) error
	Name() string
}

// New 按模式创建跟随器 exec 模式下找不到 tail 时退回轮询
func New(mode string) Follower {
	if strings.EqualFold(strings.TrimSpace(mode), ModePoll) {
		return NewPoller(0)
	}
	if _, err := exec.LookPath(tailBinary); err != nil {
		logger.Warn("未找到 %s 命令 改用进程内轮询: %v", tailBinary, err)
		return NewPoller(0)
	}
	return NewCommand()
}
