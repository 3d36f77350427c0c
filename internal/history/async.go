// 本文件用于异步写入告警历史 磁盘 I/O 不占用检测流水线

package history

import (
	"context"
	"sync"

	"bluegreen-watch/internal/alert"
	"bluegreen-watch/internal/logger"
)

const defaultQueueSize = 256

// AsyncRecorder 把告警决策放入缓冲队列 由单个后台协程按序写入
type AsyncRecorder struct {
	inner  alert.Recorder
	queue  chan alert.Decision
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsyncRecorder 创建并启动异步记录器
func NewAsyncRecorder(inner alert.Recorder, queueSize int) *AsyncRecorder {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	r := &AsyncRecorder{
		inner: inner,
		queue: make(chan alert.Decision, queueSize),
		done:  make(chan struct{}),
	}
	go r.loop()
	return r
}

// RecordDecision 提交一条决策 队列已满或已关闭时丢弃并记录警告 从不阻塞
func (r *AsyncRecorder) RecordDecision(decision alert.Decision) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		logger.Warn("告警历史已关闭 丢弃记录: id=%s", decision.ID)
		return
	}
	select {
	case r.queue <- decision:
	default:
		logger.Warn("告警历史队列已满 丢弃记录: id=%s kind=%s", decision.ID, decision.Kind)
	}
}

func (r *AsyncRecorder) loop() {
	defer close(r.done)
	for decision := range r.queue {
		r.inner.RecordDecision(decision)
	}
}

// Close 停止接收 等待队列写完或 ctx 到期 可重复调用
func (r *AsyncRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		logger.Warn("告警历史写入超时 剩余 %d 条未写入", len(r.queue))
		return ctx.Err()
	}
}
