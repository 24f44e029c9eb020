// channel_feed.go
// 核心职责：单机模式下的事件分发实现
// 1. 维护每个用户的订阅者集合
// 2. 通过内存通道转发事件，不依赖外部消息队列
// 3. 适合小规模部署、开发环境和测试
package changefeed

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"linguachat/pkg/constants"
)

// subscriber 单个订阅者
// 同一用户可能有多个订阅者（多标签页 = 多个同步上下文）
type subscriber struct {
	userId string
	ch     chan Event
}

// channelFeed 内存通道实现的事件源
type channelFeed struct {
	mu sync.Mutex
	// subs 按用户分组的订阅者集合
	subs map[string]map[*subscriber]struct{}
	// transmit 事件转发通道，Publish 写入，Start 消费
	transmit chan Event
	closed   bool
}

// NewChannelFeed 创建单机事件源
func NewChannelFeed() Feed {
	return &channelFeed{
		subs:     make(map[string]map[*subscriber]struct{}),
		transmit: make(chan Event, constants.CHANNEL_SIZE),
	}
}

// Publish 发布事件到转发通道
func (f *channelFeed) Publish(ctx context.Context, ev Event) error {
	select {
	case f.transmit <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe 订阅某个用户可见的事件流
func (f *channelFeed) Subscribe(userId string) (<-chan Event, func()) {
	sub := &subscriber{
		userId: userId,
		ch:     make(chan Event, constants.CHANNEL_SIZE),
	}

	f.mu.Lock()
	if f.subs[userId] == nil {
		f.subs[userId] = make(map[*subscriber]struct{})
	}
	f.subs[userId][sub] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			if set, ok := f.subs[userId]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(f.subs, userId)
				}
			}
			f.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Start 启动事件消费循环
// 从转发通道取事件，按 UserIds 分发给各自的订阅者
func (f *channelFeed) Start() {
	for ev := range f.transmit {
		f.fanout(ev)
	}
}

// fanout 将事件分发给所有可见用户的订阅者
// 订阅者通道满时丢弃事件并告警：列表刷新是幂等的，
// 丢失的事件会被下一次去抖刷新追回
func (f *channelFeed) fanout(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, userId := range ev.UserIds {
		for sub := range f.subs[userId] {
			select {
			case sub.ch <- ev:
			default:
				zap.L().Warn("changefeed subscriber channel full, event dropped",
					zap.String("user_id", userId),
					zap.String("table", ev.Table),
					zap.String("type", ev.Type),
				)
			}
		}
	}
}

// Close 关闭事件源
func (f *channelFeed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()
	close(f.transmit)
}
