// ws_feed.go
// 核心职责：消费远端数据服务的实时变更流
// 远端存储在行变更时通过 WebSocket 推送事件，本实现只做接收和本地分发
package changefeed

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsFeed 远端实时流实现的事件源
// 只读事件源：写入由远端存储完成，Publish 仅做本地分发，
// 远端回流的同一事件由消费方按 ID 去重
type wsFeed struct {
	local *channelFeed
	url   string

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	done   chan struct{}
}

// NewWSFeed 创建远端实时流事件源
func NewWSFeed(url string) Feed {
	return &wsFeed{
		local: NewChannelFeed().(*channelFeed),
		url:   url,
		done:  make(chan struct{}),
	}
}

// Publish 本地分发事件
// 远端才是事件的权威来源；本地分发让当前实例的会话立即收敛，
// 稍后回流的远端事件靠去重丢弃
func (f *wsFeed) Publish(ctx context.Context, ev Event) error {
	f.local.fanout(ev)
	return nil
}

// Subscribe 订阅某个用户可见的事件流
func (f *wsFeed) Subscribe(userId string) (<-chan Event, func()) {
	return f.local.Subscribe(userId)
}

// Start 连接远端并启动读取循环，断线后退避重连
func (f *wsFeed) Start() {
	for {
		select {
		case <-f.done:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
		if err != nil {
			zap.L().Error("realtime dial failed, retrying", zap.String("url", f.url), zap.Error(err))
			select {
			case <-f.done:
				return
			case <-time.After(3 * time.Second):
			}
			continue
		}
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			conn.Close()
			return
		}
		f.conn = conn
		f.mu.Unlock()

		f.readLoop(conn)
	}
}

// readLoop 逐条读取事件并分发，读取出错即返回触发重连
func (f *wsFeed) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			select {
			case <-f.done:
			default:
				zap.L().Warn("realtime read error, reconnecting", zap.Error(err))
			}
			return
		}
		f.local.fanout(ev)
	}
}

// Close 关闭连接和本地分发
func (f *wsFeed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	conn := f.conn
	f.mu.Unlock()

	close(f.done)
	if conn != nil {
		conn.Close()
	}
	f.local.Close()
}
