// 本文件用于通过 tail -F 子进程跟随日志
package tail

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"bluegreen-watch/internal/logger"
)

const (
	tailBinary        = "tail"
	defaultGrace      = 2 * time.Second
	maxLineBytes      = 1024 * 1024
	initialLineBuffer = 64 * 1024
)

// Command 启动 tail -F -n 0 子进程 从文件末尾开始并跟随轮转与截断
type Command struct {
	binary string
	grace  time.Duration // SIGTERM 后等待退出的时间 超时则 SIGKILL
}

// NewCommand 创建子进程跟随器
func NewCommand() *Command {
	return &Command{binary: tailBinary, grace: defaultGrace}
}

// Name 返回跟随器名称
func (c *Command) Name() string { return "tail -F" }

// Follow 跟随 path 的新增行
func (c *Command) Follow(ctx context.Context, path string, onLine func(line string)) error {
	cmd := exec.Command(c.binary, "-F", "-n", "0", path)
	configureChild(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("创建 tail 输出管道失败: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("创建 tail 错误管道失败: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("启动 tail 失败: %w", err)
	}
	pid := cmd.Process.Pid
	logger.Debug("tail 子进程已启动: pid=%d", pid)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// tail 在文件被替换或截断时会在 stderr 输出提示
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logger.Info("%s", strings.TrimSpace(scanner.Text()))
		}
	}()

	exited := make(chan struct{})
	var stopper sync.WaitGroup
	stopper.Add(1)
	go func() {
		defer stopper.Done()
		select {
		case <-ctx.Done():
			c.terminate(pid, exited)
		case <-exited:
		}
	}()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, initialLineBuffer), maxLineBytes)
	for scanner.Scan() {
		onLine(strings.TrimRight(scanner.Text(), "\r"))
	}
	scanErr := scanner.Err()
	if scanErr != nil {
		// 读取失败时子进程仍在运行 先结束再回收
		_ = cmd.Process.Kill()
	}
	wg.Wait()
	waitErr := cmd.Wait()
	close(exited)
	stopper.Wait()

	if ctx.Err() != nil {
		return nil
	}
	if scanErr != nil {
		return fmt.Errorf("%w: 读取 tail 输出失败: %v", ErrFollowerExited, scanErr)
	}
	if waitErr != nil {
		return fmt.Errorf("%w: tail 退出: %v", ErrFollowerExited, waitErr)
	}
	return fmt.Errorf("%w: tail 已退出", ErrFollowerExited)
}

// terminate 先发送 SIGTERM 宽限期内未退出再 SIGKILL
func (c *Command) terminate(pid int, exited <-chan struct{}) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return
	}
	if err := proc.Terminate(); err != nil && !isProcessMissingErr(err) {
		logger.Warn("发送 SIGTERM 到 tail 失败: pid=%d err=%v", pid, err)
	}
	grace := c.grace
	if grace <= 0 {
		grace = defaultGrace
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-exited:
		logger.Debug("tail 子进程已退出: pid=%d", pid)
		return
	case <-timer.C:
	}
	logger.Warn("tail 未在 %s 内退出 强制结束: pid=%d", grace, pid)
	if err := proc.Kill(); err != nil && !isProcessMissingErr(err) {
		logger.Error("结束 tail 失败: pid=%d err=%v", pid, err)
	}
}

func isProcessMissingErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(msg, "no such process") ||
		strings.Contains(msg, "process does not exist") ||
		strings.Contains(msg, "process already finished") ||
		strings.Contains(msg, "not found")
}
