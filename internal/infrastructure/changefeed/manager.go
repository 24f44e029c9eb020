package changefeed

import (
	"fmt"

	"linguachat/internal/config"
)

// New 根据配置创建事件源
// feedMode: "channel"（默认）、"kafka"、"websocket"
func New(cfg *config.FeedConfig) (Feed, error) {
	switch cfg.FeedMode {
	case "", "channel":
		return NewChannelFeed(), nil
	case "kafka":
		return NewKafkaFeed(cfg), nil
	case "websocket":
		return NewWSFeed(cfg.RealtimeURL), nil
	default:
		return nil, fmt.Errorf("unknown feed mode %q", cfg.FeedMode)
	}
}
