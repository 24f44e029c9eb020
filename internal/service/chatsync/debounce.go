package chatsync

import (
	"sync"
	"time"
)

// debouncer 尾沿去抖器
// 窗口期内的多次 Trigger 合并为窗口结束后的一次 fn 调用
type debouncer struct {
	mu     sync.Mutex
	window time.Duration
	fn     func()
	timer  *time.Timer
	closed bool
}

func newDebouncer(window time.Duration, fn func()) *debouncer {
	return &debouncer{window: window, fn: fn}
}

// Trigger 触发一次调用请求
// 窗口内再次触发会重置计时，fn 最终只执行一次
func (d *debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.timer != nil {
		d.timer.Reset(d.window)
		return
	}
	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		d.timer = nil
		closed := d.closed
		d.mu.Unlock()
		if !closed {
			d.fn()
		}
	})
}

// Stop 停止去抖器，丢弃未触发的调用
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
