// Package repository 定义数据访问层接口和聚合结构
// 所有 Repository 接口在此文件定义，具体实现在各自的文件中
package repository

import (
	"database/sql"
	"time"

	"linguachat/internal/model"

	"gorm.io/gorm"
)

// ==================== Repository 接口定义 ====================

// ChatRepository 一对一会话数据访问接口
type ChatRepository interface {
	// FindByUuid 根据会话 UUID 查找
	FindByUuid(uuid string) (*model.DirectChat, error)
	// FindByPair 根据有序用户对查找（调用前必须先 CanonicalPair）
	FindByPair(aId, bId string) (*model.DirectChat, error)
	// FindActiveByUserId 查找用户仍在其中的所有会话，按最后消息时间倒序
	FindActiveByUserId(userId string) ([]model.DirectChat, error)
	// Create 创建会话（唯一键冲突由调用方用 IsDuplicateKey 判断）
	Create(chat *model.DirectChat) error
	// UpdateSide 更新某一侧的字段，side 取 "a" 或 "b"
	UpdateSide(chatUuid, side string, updates map[string]interface{}) error
	// UpdateLastMessageAt 刷新最后消息时间
	UpdateLastMessageAt(chatUuid string, t time.Time) error
	// HardDelete 物理删除会话（双方都退出后的级联清理）
	HardDelete(chatUuid string) error
}

// MessageRepository 消息数据访问接口
// 所有查询都接受 floor 参数：请求者退出又重新加入时，
// 退出时间之前的消息不返回（floor 无效时不过滤）
type MessageRepository interface {
	// FindByUuid 根据雪花 ID 查找消息
	FindByUuid(uuid int64) (*model.DirectMessage, error)
	// FindBefore 按 ID 倒序取 beforeUuid 之前的消息，beforeUuid=0 表示从最新开始
	FindBefore(chatId string, beforeUuid int64, floor sql.NullTime, limit int) ([]model.DirectMessage, error)
	// FindAfter 按 ID 升序取严格晚于 afterUuid 的消息
	FindAfter(chatId string, afterUuid int64, floor sql.NullTime, limit int) ([]model.DirectMessage, error)
	// FindFrom 按 ID 升序取 fromUuid 起（含）的消息，用于锚点定位
	FindFrom(chatId string, fromUuid int64, floor sql.NullTime, limit int) ([]model.DirectMessage, error)
	// FindLastByChatId 查找会话内最新一条消息，用于列表预览
	FindLastByChatId(chatId string, floor sql.NullTime) (*model.DirectMessage, error)
	// UnreadCount 统计非本人发送且未读的消息数
	UnreadCount(chatId, selfId string) (int64, error)
	// Create 创建消息
	Create(message *model.DirectMessage) error
	// FindUnreadByChat 查找会话内所有对方发送且未读的消息
	FindUnreadByChat(chatId, readerId string) ([]model.DirectMessage, error)
	// MarkReadByUuids 批量标记已读（只迁移 is_read=false 的行，保证单向性）
	MarkReadByUuids(uuids []int64) error
	// ModerateByUuid 审核删除：替换内容并保留审计标记
	ModerateByUuid(uuid int64, placeholder string) error
	// FindUuidsByChatId 取会话内全部消息 ID，用于级联删除附件
	FindUuidsByChatId(chatId string) ([]int64, error)
	// HardDeleteByChatId 物理删除会话内全部消息
	HardDeleteByChatId(chatId string) error
}

// AttachmentRepository 附件数据访问接口
type AttachmentRepository interface {
	// CreateBatch 批量创建附件
	CreateBatch(attachments []model.Attachment) error
	// FindByMessageUuids 批量查找多条消息的附件
	FindByMessageUuids(messageUuids []int64) ([]model.Attachment, error)
	// HardDeleteByMessageUuids 物理删除指定消息的全部附件
	HardDeleteByMessageUuids(messageUuids []int64) error
}

// UserRepository 用户资料投影数据访问接口
type UserRepository interface {
	// FindByUuid 根据 profile UUID 查找
	FindByUuid(uuid string) (*model.ChatUser, error)
	// FindByUuids 批量查找（一次 IN 查询，避免 N+1）
	FindByUuids(uuids []string) ([]model.ChatUser, error)
	// FindByAuthId 根据认证账号 ID 查找 profile
	FindByAuthId(authId string) (*model.ChatUser, error)
	// Search 按昵称/用户名模糊搜索，排除指定用户
	Search(term, excludeUuid string, limit int) ([]model.ChatUser, error)
	// Create 创建用户投影（供外部同步与测试播种）
	Create(user *model.ChatUser) error
}

// BlockRepository 拉黑关系数据访问接口
type BlockRepository interface {
	// FindActiveBetween 查找两人之间生效中的拉黑行（双向，最多两行）
	FindActiveBetween(oneId, twoId string) ([]model.UserBlock, error)
	// Create 创建拉黑关系
	Create(block *model.UserBlock) error
	// End 解除拉黑（置 ended_at）
	End(blockerId, blockedId string) error
}

// ==================== Repository 聚合 ====================

// Repositories 聚合所有 Repository 实例
// 作为依赖注入的入口，Service 层通过此结构访问数据层
type Repositories struct {
	db         *gorm.DB
	Chat       ChatRepository
	Message    MessageRepository
	Attachment AttachmentRepository
	User       UserRepository
	Block      BlockRepository
}

// NewRepositories 创建所有 Repository 实例
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:         db,
		Chat:       NewChatRepository(db),
		Message:    NewMessageRepository(db),
		Attachment: NewAttachmentRepository(db),
		User:       NewUserRepository(db),
		Block:      NewBlockRepository(db),
	}
}

// Transaction 在数据库事务中执行函数
// 事务内的所有操作要么全部成功，要么全部回滚
func (r *Repositories) Transaction(fn func(txRepos *Repositories) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
