package changefeed

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startTestFeed(t *testing.T) Feed {
	t.Helper()
	feed := NewChannelFeed()
	go feed.Start()
	t.Cleanup(feed.Close)
	return feed
}

func TestChannelFeedTargeting(t *testing.T) {
	feed := startTestFeed(t)

	aliceCh, cancelA := feed.Subscribe("alice")
	defer cancelA()
	bobCh, cancelB := feed.Subscribe("bob")
	defer cancelB()

	payload, _ := json.Marshal(map[string]string{"chat_id": "C1"})
	require.NoError(t, feed.Publish(context.Background(), Event{
		Table:   TableMessage,
		Type:    EventInsert,
		UserIds: []string{"alice"},
		New:     payload,
	}))

	select {
	case ev := <-aliceCh:
		require.Equal(t, TableMessage, ev.Table)
	case <-time.After(time.Second):
		t.Fatal("目标用户未收到事件")
	}

	select {
	case ev := <-bobCh:
		t.Fatalf("非目标用户不应收到事件: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestChannelFeedMultipleSubscribers 同一用户的多个订阅者（多端）都收到事件
func TestChannelFeedMultipleSubscribers(t *testing.T) {
	feed := startTestFeed(t)

	ch1, cancel1 := feed.Subscribe("alice")
	defer cancel1()
	ch2, cancel2 := feed.Subscribe("alice")
	defer cancel2()

	require.NoError(t, feed.Publish(context.Background(), Event{
		Table: TableChat, Type: EventUpdate, UserIds: []string{"alice"},
	}))

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("订阅者未收到事件")
		}
	}
}

func TestChannelFeedCancelClosesChannel(t *testing.T) {
	feed := startTestFeed(t)

	ch, cancel := feed.Subscribe("alice")
	cancel()
	// 重复取消安全
	cancel()

	_, ok := <-ch
	require.False(t, ok, "取消订阅后通道应关闭")

	// 取消后发布不会 panic
	require.NoError(t, feed.Publish(context.Background(), Event{
		Table: TableChat, Type: EventInsert, UserIds: []string{"alice"},
	}))
}

// TestChannelFeedDropWhenFull 订阅者不消费时事件被丢弃，发布方不被阻塞
func TestChannelFeedDropWhenFull(t *testing.T) {
	feed := startTestFeed(t)

	_, cancel := feed.Subscribe("slow")
	defer cancel()

	ctx, ctxCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer ctxCancel()
	// 远超订阅者缓冲，发布不应卡死
	for i := 0; i < 500; i++ {
		require.NoError(t, feed.Publish(ctx, Event{
			Table: TableMessage, Type: EventInsert, UserIds: []string{"slow"},
		}))
	}
}
