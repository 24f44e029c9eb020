// Package model 定义数据库实体模型
// 本文件定义一对一会话模型
package model

import (
	"database/sql"

	"gorm.io/gorm"
)

// DirectChat 一对一会话模型
// 对应数据库 direct_chat 表
// 两个参与者按字典序存储（ParticipantAId < ParticipantBId），
// 配合唯一索引保证无序用户对只存在一行会话
type DirectChat struct {
	gorm.Model

	// Uuid 会话唯一标识
	// 格式：C + 13位时间戳随机字符串
	Uuid string `gorm:"column:uuid;uniqueIndex;type:char(20);comment:会话uuid"`

	// ParticipantAId 参与者A（字典序较小的一方）
	ParticipantAId string `gorm:"column:participant_a_id;index;type:char(36);not null;uniqueIndex:idx_chat_pair;comment:参与者A"`

	// ParticipantBId 参与者B（字典序较大的一方）
	ParticipantBId string `gorm:"column:participant_b_id;index;type:char(36);not null;uniqueIndex:idx_chat_pair;comment:参与者B"`

	// AActive / BActive 各自的软成员标记
	// 一方退出会话时只翻转自己的标记，双方都为 false 时会话才会被真正删除
	AActive bool `gorm:"column:a_active;not null;default:true;comment:A是否在会话中"`
	BActive bool `gorm:"column:b_active;not null;default:true;comment:B是否在会话中"`

	// ALeftAt / BLeftAt 退出时间
	// 重新加入后不清除历史：该时间之前的消息对当事人不可见
	ALeftAt sql.NullTime `gorm:"column:a_left_at;type:datetime;comment:A退出时间"`
	BLeftAt sql.NullTime `gorm:"column:b_left_at;type:datetime;comment:B退出时间"`

	// ANotified / BNotified "新会话"提示标记
	// 创建会话时发起方为 false，对方为 true；对方打开会话时清除
	ANotified bool `gorm:"column:a_notified;not null;default:false;comment:A有新会话提示"`
	BNotified bool `gorm:"column:b_notified;not null;default:false;comment:B有新会话提示"`

	// LastMessageAt 最后消息时间
	// 用于会话列表排序（最近聊天的排在前面）
	LastMessageAt sql.NullTime `gorm:"column:last_message_at;type:datetime;comment:最近消息时间"`
}

// TableName 指定表名
func (DirectChat) TableName() string {
	return "direct_chat"
}

// SideOf 返回 userId 在会话中的位置："a"、"b"，非参与者返回空串
func (c *DirectChat) SideOf(userId string) string {
	switch userId {
	case c.ParticipantAId:
		return "a"
	case c.ParticipantBId:
		return "b"
	}
	return ""
}

// OtherOf 返回 userId 的对端参与者 ID，非参与者返回空串
func (c *DirectChat) OtherOf(userId string) string {
	switch userId {
	case c.ParticipantAId:
		return c.ParticipantBId
	case c.ParticipantBId:
		return c.ParticipantAId
	}
	return ""
}

// ActiveOf 返回 userId 一侧的 active 标记
func (c *DirectChat) ActiveOf(userId string) bool {
	if userId == c.ParticipantAId {
		return c.AActive
	}
	return c.BActive
}

// NotifiedOf 返回 userId 一侧的 notified 标记
func (c *DirectChat) NotifiedOf(userId string) bool {
	if userId == c.ParticipantAId {
		return c.ANotified
	}
	return c.BNotified
}

// LeftAtOf 返回 userId 一侧的退出时间
func (c *DirectChat) LeftAtOf(userId string) sql.NullTime {
	if userId == c.ParticipantAId {
		return c.ALeftAt
	}
	return c.BLeftAt
}

// CanonicalPair 将无序用户对转为存储用的有序对（字典序较小者在前）
func CanonicalPair(oneId, twoId string) (string, string) {
	if oneId > twoId {
		return twoId, oneId
	}
	return oneId, twoId
}
