package alert

// Window 保存最近 N 个上游状态码的环形缓冲区 并增量维护错误计数
type Window struct {
	buf    []int
	next   int
	size   int
	errors int
	filled bool
}

// NewWindow 创建容量为 capacity 的窗口 容量至少为 1
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]int, capacity)}
}

// Record 追加一个状态码 满时淘汰最旧的一条
func (w *Window) Record(status int) {
	if w.size == len(w.buf) {
		if isError(w.buf[w.next]) {
			w.errors--
		}
	} else {
		w.size++
	}
	w.buf[w.next] = status
	if isError(status) {
		w.errors++
	}
	w.next = (w.next + 1) % len(w.buf)
	if w.size == len(w.buf) {
		w.filled = true
	}
}

// Rate 返回错误率百分比 窗口首次填满之前返回 false
func (w *Window) Rate() (float64, bool) {
	if !w.filled {
		return 0, false
	}
	return float64(w.errors) / float64(len(w.buf)) * 100, true
}

// Len 返回当前条数
func (w *Window) Len() int { return w.size }

// Cap 返回窗口容量
func (w *Window) Cap() int { return len(w.buf) }

// Errors 返回窗口内 5xx 的条数
func (w *Window) Errors() int { return w.errors }

func isError(status int) bool {
	return status >= 500
}
