// Package model 定义数据库实体模型
// 本文件定义一对一消息模型
package model

import (
	"database/sql"

	"gorm.io/gorm"
)

// DirectMessage 消息模型
// 对应数据库 direct_message 表
// 消息创建后除已读状态和内容审核外不可变更，也不会换会话
type DirectMessage struct {
	gorm.Model

	// Uuid 消息唯一标识
	// 使用雪花算法生成的 int64 类型 ID，同一毫秒内仍可按 ID 排序
	Uuid int64 `gorm:"column:uuid;uniqueIndex;type:bigint;not null;comment:消息雪花ID"`

	// ChatId 所属会话 UUID
	ChatId string `gorm:"column:chat_id;index;type:char(20);not null;comment:会话uuid"`

	// SendId 发送者 profile UUID
	SendId string `gorm:"column:send_id;index;type:char(36);not null;comment:发送者uuid"`

	// Content 消息文本内容
	// 纯附件消息时为占位空串
	Content string `gorm:"column:content;type:TEXT;comment:消息内容"`

	// IsRead / ReadAt 已读状态
	// 只允许 未读->已读 单向迁移，ReadAt 记录迁移时间
	IsRead bool         `gorm:"column:is_read;not null;default:false;comment:对方是否已读"`
	ReadAt sql.NullTime `gorm:"column:read_at;type:datetime;comment:已读时间"`

	// IsSystem 系统消息标记（如"对方重新加入了会话"）
	IsSystem bool `gorm:"column:is_system;not null;default:false;comment:系统消息"`

	// Moderated 审核删除标记
	// 内容违规时 Content 被替换为占位文案，此标记作为审计痕迹保留
	Moderated bool `gorm:"column:moderated;not null;default:false;comment:已被审核删除"`

	// Attachments 附件列表，按创建顺序排列
	Attachments []Attachment `gorm:"foreignKey:MessageUuid;references:Uuid"`
}

// TableName 指定表名
func (DirectMessage) TableName() string {
	return "direct_message"
}
