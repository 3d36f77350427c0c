// 本文件用于进程内轮询跟随日志 不依赖外部 tail 命令
package tail

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"bluegreen-watch/internal/logger"
)

const defaultPollInterval = 500 * time.Millisecond

type fileCursor struct {
	offset    int64
	remainder string
	info      os.FileInfo
}

// Poller 以游标增量读取文件 fsnotify 写事件提前唤醒 定时器兜底
type Poller struct {
	interval time.Duration
}

// NewPoller 创建轮询跟随器 interval 非正时使用默认值
func NewPoller(interval time.Duration) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Poller{interval: interval}
}

// Name 返回跟随器名称
func (p *Poller) Name() string { return "poll" }

// Follow 从文件末尾开始跟随 截断或轮转后从新文件头读取
func (p *Poller) Follow(ctx context.Context, path string, onLine func(line string)) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFollowerExited, err)
	}
	cursor := &fileCursor{offset: info.Size(), info: info}

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("创建文件监听失败 仅依赖定时轮询: %v", err)
	} else {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			logger.Warn("监听日志目录失败 仅依赖定时轮询: %v", err)
		} else {
			events = watcher.Events
			watchErrs = watcher.Errors
		}
	}

	target := filepath.Clean(path)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			p.poll(path, cursor, onLine)
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			logger.Warn("文件监听错误: %v", err)
		case <-ticker.C:
			p.poll(path, cursor, onLine)
		}
	}
}

func (p *Poller) poll(path string, cursor *fileCursor, onLine func(string)) {
	if err := readNew(path, cursor, onLine); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// 轮转期间文件短暂缺失 等待新文件出现
			return
		}
		logger.Warn("读取日志失败: %s err=%v", path, err)
	}
}

// readNew 读取游标之后的新增内容 不完整的末行留待下次
func readNew(path string, cursor *fileCursor, onLine func(string)) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return err
	}

	if cursor.info != nil && !os.SameFile(cursor.info, info) {
		logger.Info("检测到日志轮转 从新文件头读取: %s", path)
		cursor.offset = 0
		cursor.remainder = ""
	} else if info.Size() < cursor.offset {
		logger.Info("检测到日志截断 从头读取: %s", path)
		cursor.offset = 0
		cursor.remainder = ""
	}
	cursor.info = info
	if info.Size() == cursor.offset {
		return nil
	}

	if _, err := file.Seek(cursor.offset, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	cursor.offset += int64(len(data))

	content := cursor.remainder + string(data)
	lines := strings.Split(content, "\n")
	// 以换行结尾时最后一段为空串
	cursor.remainder = lines[len(lines)-1]
	lines = lines[:len(lines)-1]
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		onLine(line)
	}
	return nil
}
