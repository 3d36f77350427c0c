package alert

import (
	"sync"
	"time"
)

// Limiter 按告警类别实施冷却 检查与记录在同一把锁内完成
type Limiter struct {
	mu        sync.Mutex
	cooldown  time.Duration
	lastFired map[Kind]time.Time
}

// NewLimiter 创建冷却门
func NewLimiter(cooldown time.Duration) *Limiter {
	if cooldown < 0 {
		cooldown = 0
	}
	return &Limiter{
		cooldown:  cooldown,
		lastFired: make(map[Kind]time.Time),
	}
}

// Allow 判断该类别此刻能否告警 允许时记录 now 为最近告警时间
// 从未告警过的类别总是允许 其余要求 now-last 严格大于冷却时间
func (l *Limiter) Allow(kind Kind, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, ok := l.lastFired[kind]
	if ok && now.Sub(last) <= l.cooldown {
		return false
	}
	l.lastFired[kind] = now
	return true
}

// LastFired 返回该类别最近一次告警时间
func (l *Limiter) LastFired(kind Kind) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	last, ok := l.lastFired[kind]
	return last, ok
}

// Remaining 返回该类别剩余的冷却时间
func (l *Limiter) Remaining(kind Kind, now time.Time) time.Duration {
	last, ok := l.LastFired(kind)
	if !ok {
		return 0
	}
	left := l.cooldown - now.Sub(last)
	if left < 0 {
		return 0
	}
	return left
}

// Cooldown 返回冷却时间
func (l *Limiter) Cooldown() time.Duration {
	return l.cooldown
}
