package chatsync

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDebouncerCoalesces(t *testing.T) {
	var calls int32
	d := newDebouncer(50*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })
	defer d.Stop()

	for i := 0; i < 10; i++ {
		d.Trigger()
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, time.Second, 5*time.Millisecond)

	// 窗口结束后不会再触发
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDebouncerSeparateWindows(t *testing.T) {
	var calls int32
	d := newDebouncer(20*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })
	defer d.Stop()

	d.Trigger()
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 1
	}, time.Second, 5*time.Millisecond)

	d.Trigger()
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestDebouncerStopDiscardsPending(t *testing.T) {
	var calls int32
	d := newDebouncer(30*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })

	d.Trigger()
	d.Stop()

	time.Sleep(80 * time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&calls))

	// 停止后再触发也不执行
	d.Trigger()
	time.Sleep(80 * time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&calls))
}
