package alert

// FailoverDetector 跟踪最近一次观察到的上游池 并在变化时给出切换事件
type FailoverDetector struct {
	lastPool string
	seen     bool
}

// NewFailoverDetector 创建处于未观察状态的检测器
func NewFailoverDetector() *FailoverDetector {
	return &FailoverDetector{}
}

// Observe 记录一次上游池观察
// 首次观察只建立基线 池变化时返回切换事件 无论告警是否最终发出都会切换到新池
func (d *FailoverDetector) Observe(pool string) (Failover, bool) {
	if !d.seen {
		d.seen = true
		d.lastPool = pool
		return Failover{}, false
	}
	if pool == d.lastPool {
		return Failover{}, false
	}
	change := Failover{From: d.lastPool, To: pool}
	d.lastPool = pool
	return change, true
}

// Current 返回当前跟踪的上游池
func (d *FailoverDetector) Current() (string, bool) {
	return d.lastPool, d.seen
}
