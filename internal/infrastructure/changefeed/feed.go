// Package changefeed 实现表级变更事件的订阅与分发
// 核心职责：把"某行被插入/更新/删除"的事件送到能看见该行的用户会话
// 抽象事件传输方式，支持 Channel（单机）、Kafka（分布式）、WebSocket（远端实时流）三种实现
package changefeed

import (
	"context"
	"encoding/json"
)

// 事件涉及的表名
const (
	TableChat    = "direct_chat"
	TableMessage = "direct_message"
)

// 事件类型
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// Event 一条行级变更事件
// 消费方不能假设事件有序且不重复，必须按业务 ID 去重
type Event struct {
	// Table 发生变更的表
	Table string `json:"table"`
	// Type 变更类型：INSERT / UPDATE / DELETE
	Type string `json:"type"`
	// UserIds 可见此事件的用户（行级过滤在发布侧完成）
	UserIds []string `json:"user_ids"`
	// New / Old 变更前后的行内容（JSON），按表反序列化为对应 DTO
	New json.RawMessage `json:"new,omitempty"`
	Old json.RawMessage `json:"old,omitempty"`
}

// Feed 变更事件源接口
// 支持多种实现：channelFeed (单机), kafkaFeed (分布式), wsFeed (远端实时流)
type Feed interface {
	// Publish 发布事件
	Publish(ctx context.Context, ev Event) error
	// Subscribe 订阅某个用户可见的事件流
	// 返回只读事件通道和取消函数；取消后通道关闭
	Subscribe(userId string) (<-chan Event, func())
	// Start 启动事件消费循环（阻塞，通常在独立 goroutine 中调用）
	Start()
	// Close 关闭事件源资源
	Close()
}
