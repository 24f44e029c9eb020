// kafka_feed.go
// 核心职责：分布式模式下的事件分发实现
// 事件经由 Kafka 主题广播，每个实例消费后在本地按用户分发
package changefeed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"linguachat/internal/config"
)

// kafkaFeed Kafka 实现的事件源
// 本地订阅管理复用 channelFeed，Kafka 只负责跨实例传输
type kafkaFeed struct {
	local  *channelFeed
	writer *kafka.Writer
	reader *kafka.Reader
	done   chan struct{}
}

// NewKafkaFeed 创建 Kafka 事件源
func NewKafkaFeed(cfg *config.FeedConfig) Feed {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.HostPort),
		Topic:                  cfg.EventTopic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           cfg.Timeout * time.Second,
		RequiredAcks:           kafka.RequireNone,
		AllowAutoTopicCreation: true,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        []string{cfg.HostPort},
		Topic:          cfg.EventTopic,
		CommitInterval: cfg.Timeout * time.Second,
		GroupID:        "chat_sync",
		StartOffset:    kafka.LastOffset,
	})
	return &kafkaFeed{
		local:  NewChannelFeed().(*channelFeed),
		writer: writer,
		reader: reader,
		done:   make(chan struct{}),
	}
}

// Publish 将事件序列化后写入 Kafka
// 本实例不直接分发，统一经 Kafka 回流，保证多实例行为一致
func (f *kafkaFeed) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	key := []byte(ev.Table)
	return f.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: data})
}

// Subscribe 订阅某个用户可见的事件流
func (f *kafkaFeed) Subscribe(userId string) (<-chan Event, func()) {
	return f.local.Subscribe(userId)
}

// Start 启动 Kafka 消费循环
func (f *kafkaFeed) Start() {
	for {
		select {
		case <-f.done:
			return
		default:
		}
		msg, err := f.reader.ReadMessage(context.Background())
		if err != nil {
			select {
			case <-f.done:
				return
			default:
			}
			zap.L().Error("kafka read message error", zap.Error(err))
			continue
		}
		var ev Event
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			zap.L().Error("kafka event unmarshal error", zap.Error(err))
			continue
		}
		f.local.fanout(ev)
	}
}

// Close 关闭 Kafka 连接和本地分发
func (f *kafkaFeed) Close() {
	close(f.done)
	if err := f.writer.Close(); err != nil {
		zap.L().Error(err.Error())
	}
	if err := f.reader.Close(); err != nil {
		zap.L().Error(err.Error())
	}
	f.local.Close()
}
