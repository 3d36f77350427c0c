package tail

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"bluegreen-watch/internal/logger"
)

const defaultWaitInterval = 2 * time.Second

// WaitForFile 阻塞直到 path 存在 每个间隔记录一次等待日志
// 父目录的 fsnotify 事件会提前唤醒 ctx 取消时返回 ctx.Err()
func WaitForFile(ctx context.Context, path string, interval time.Duration) error {
	if fileExists(path) {
		return nil
	}
	if interval <= 0 {
		interval = defaultWaitInterval
	}

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer watcher.Close()
		// 父目录可能尚不存在 此时只依赖轮询
		if err := watcher.Add(filepath.Dir(path)); err == nil {
			events = watcher.Events
			errs = watcher.Errors
		}
	}

	logger.Info("[*] 等待日志文件出现: %s", path)
	return waitLoop(ctx, path, interval, events, errs)
}

// waitLoop 监听事件与错误两个通道 错误只记录日志 不中断等待
func waitLoop(ctx context.Context, path string, interval time.Duration, events <-chan fsnotify.Event, errs <-chan error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if fileExists(path) {
				logger.Info("[✓] 日志文件已就绪: %s", path)
				return nil
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warn("文件监听错误: %v", err)
		case <-ticker.C:
			if fileExists(path) {
				logger.Info("[✓] 日志文件已就绪: %s", path)
				return nil
			}
			logger.Info("[*] 等待日志文件出现: %s", path)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
