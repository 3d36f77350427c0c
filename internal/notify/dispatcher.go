package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"bluegreen-watch/internal/logger"
)

// ErrDispatcherClosed 表示分发器已关闭
var ErrDispatcherClosed = errors.New("告警分发器已关闭")

// Observer 接收每次投递的结果 用于指标统计
type Observer func(channel string, elapsed time.Duration, err error)

// Dispatcher 异步告警分发器 调用方只负责提交 投递失败只记录日志
type Dispatcher struct {
	notifier Notifier
	queue    chan Message
	workers  int
	timeout  time.Duration
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	observer Observer
}

// NewDispatcher 创建并启动分发器
func NewDispatcher(notifier Notifier, workers, queueSize int, timeout time.Duration) *Dispatcher {
	if notifier == nil {
		notifier = Nop{}
	}
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	d := &Dispatcher{
		notifier: notifier,
		queue:    make(chan Message, queueSize),
		workers:  workers,
		timeout:  timeout,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	logger.Debug("告警分发器已启动: channel=%s workers=%d queue=%d", notifier.Name(), workers, queueSize)
	return d
}

// SetObserver 设置投递结果回调 需在提交前调用
func (d *Dispatcher) SetObserver(observer Observer) {
	d.mu.Lock()
	d.observer = observer
	d.mu.Unlock()
}

// Submit 提交告警 队列已满或已关闭时立即返回 false
func (d *Dispatcher) Submit(msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		logger.Warn("告警分发器已关闭 丢弃告警: %s", firstLine(msg.Text))
		return false
	}
	select {
	case d.queue <- msg:
		return true
	default:
		logger.Warn("告警队列已满 丢弃告警: %s", firstLine(msg.Text))
		return false
	}
}

// worker 消费队列并投递 每次投递有独立的超时 不受关闭影响
func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(msg)
	}
	logger.Debug("告警分发协程 %d 已停止", id)
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	start := time.Now()
	err := d.notifier.Notify(ctx, msg)
	elapsed := time.Since(start)

	d.mu.RLock()
	observer := d.observer
	d.mu.RUnlock()
	if observer != nil {
		observer(d.notifier.Name(), elapsed, err)
	}

	if err != nil {
		logger.Error("[✗] 告警发送失败 channel=%s: %v", d.notifier.Name(), err)
		return
	}
	logger.Info("[✓] 告警已发送 channel=%s: %s", d.notifier.Name(), firstLine(msg.Text))
}

// Shutdown 停止接收新告警 等待队列中的告警投递完成或 ctx 到期
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		logger.Warn("告警分发器关闭超时 剩余 %d 条未投递", len(d.queue))
		return ctx.Err()
	}
}

// Pending 返回队列中待投递的告警数
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Channel 返回投递通道名称
func (d *Dispatcher) Channel() string {
	return d.notifier.Name()
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	return line
}
