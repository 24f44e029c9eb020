// Package service 定义业务层接口
// 本文件定义所有 Service 接口，供同步上下文和上层调用
// 接口设计遵循依赖倒置原则，便于测试和解耦
package service

import (
	"context"

	"linguachat/internal/dto/request"
	"linguachat/internal/dto/respond"
)

// UserService 用户资料业务接口
// 消息域不管理账号，只维护外部认证系统用户的资料投影
type UserService interface {
	// CurrentProfile 根据会话令牌解析当前用户的资料
	CurrentProfile(token string) (*respond.ChatUserRespond, error)
	// ResolveProfileId 将认证账号 ID 转换为消息域 profile ID
	ResolveProfileId(authId string) (string, error)
	// GetByUuids 批量获取用户资料，查不到的用户降级为占位资料
	GetByUuids(ctx context.Context, uuids []string) (map[string]respond.ChatUserRespond, error)
	// Search 按昵称/用户名搜索用户（排除自己）
	Search(selfId, keyword string) ([]respond.ChatUserRespond, error)
	// CreateProfile 创建资料投影（外部系统同步入口）
	CreateProfile(req request.CreateProfileRequest) (*respond.ChatUserRespond, error)
}

// BlockService 拉黑关系业务接口
type BlockService interface {
	// Check 查询两人之间的双向拉黑状态
	Check(selfId, otherId string) (*respond.BlockStatus, error)
	// Block 拉黑用户（重复拉黑幂等）
	Block(blockerId, blockedId string) error
	// Unblock 解除拉黑（未拉黑时幂等）
	Unblock(blockerId, blockedId string) error
}

// ConversationService 一对一会话业务接口
type ConversationService interface {
	// Resolve 获取或创建与对方的会话
	// 已存在且自己已退出时重新加入，不存在时创建；并发创建收敛到同一行
	Resolve(ctx context.Context, selfId, otherId string) (*respond.ChatRespond, error)
	// Leave 退出会话（幂等）；双方都退出时物理删除会话及全部消息
	Leave(ctx context.Context, selfId, chatId string) error
	// Restore 按会话 ID 重新加入已退出的会话（未退出时幂等）
	Restore(ctx context.Context, selfId, chatId string) error
	// ClearNotified 清除自己一侧的"新会话"提示标记
	ClearNotified(selfId, chatId string) error
	// List 构建会话列表视图（未读数、最后消息预览、对方资料）
	List(ctx context.Context, selfId string) ([]respond.ConversationListItem, error)
}

// MessageService 消息业务接口
type MessageService interface {
	// Send 发送消息（先过拉黑闸门，附件任一上传失败则整条中止）
	Send(ctx context.Context, req request.SendMessageRequest) (*respond.MessageRespond, error)
	// Fetch 拉取消息，支持最新页/向前翻页/向后翻页/锚点定位四种模式
	Fetch(ctx context.Context, req request.FetchMessagesRequest) (*respond.FetchMessagesRespond, error)
	// MarkRead 将会话内所有对方发来的未读消息标记为已读
	MarkRead(ctx context.Context, selfId, chatId string) error
	// Moderate 审核删除消息内容（保留行与审计标记）
	Moderate(ctx context.Context, messageUuid int64) error
}
