package repository

import (
	"database/sql"
	"time"

	"linguachat/internal/model"

	"gorm.io/gorm"
)

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建消息 Repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// withFloor 附加"退出又加入"的可见性下限
// floor 有效时只返回 created_at >= floor 的消息
func withFloor(q *gorm.DB, floor sql.NullTime) *gorm.DB {
	if floor.Valid {
		return q.Where("created_at >= ?", floor.Time)
	}
	return q
}

// FindByUuid 按雪花 ID 查找消息
func (r *messageRepository) FindByUuid(uuid int64) (*model.DirectMessage, error) {
	var message model.DirectMessage
	if err := r.db.Where("uuid = ?", uuid).First(&message).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询消息 uuid=%d", uuid)
	}
	return &message, nil
}

// FindBefore 按 ID 倒序取 beforeUuid 之前的消息
// 雪花 ID 单调递增，按 ID 排序等价于按创建时间排序且无同毫秒歧义
func (r *messageRepository) FindBefore(chatId string, beforeUuid int64, floor sql.NullTime, limit int) ([]model.DirectMessage, error) {
	q := r.db.Where("chat_id = ?", chatId)
	if beforeUuid > 0 {
		q = q.Where("uuid < ?", beforeUuid)
	}
	q = withFloor(q, floor)
	var messages []model.DirectMessage
	if err := q.Order("uuid DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询历史消息 chat_id=%s", chatId)
	}
	return messages, nil
}

// FindAfter 按 ID 升序取严格晚于 afterUuid 的消息
func (r *messageRepository) FindAfter(chatId string, afterUuid int64, floor sql.NullTime, limit int) ([]model.DirectMessage, error) {
	q := r.db.Where("chat_id = ? AND uuid > ?", chatId, afterUuid)
	q = withFloor(q, floor)
	var messages []model.DirectMessage
	if err := q.Order("uuid ASC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询新消息 chat_id=%s", chatId)
	}
	return messages, nil
}

// FindFrom 按 ID 升序取 fromUuid 起（含）的消息
func (r *messageRepository) FindFrom(chatId string, fromUuid int64, floor sql.NullTime, limit int) ([]model.DirectMessage, error) {
	q := r.db.Where("chat_id = ? AND uuid >= ?", chatId, fromUuid)
	q = withFloor(q, floor)
	var messages []model.DirectMessage
	if err := q.Order("uuid ASC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询锚点消息 chat_id=%s", chatId)
	}
	return messages, nil
}

// FindLastByChatId 查找会话内最新一条消息
func (r *messageRepository) FindLastByChatId(chatId string, floor sql.NullTime) (*model.DirectMessage, error) {
	q := withFloor(r.db.Where("chat_id = ?", chatId), floor)
	var message model.DirectMessage
	if err := q.Order("uuid DESC").First(&message).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询最新消息 chat_id=%s", chatId)
	}
	return &message, nil
}

// UnreadCount 统计非本人发送且未读的消息数
func (r *messageRepository) UnreadCount(chatId, selfId string) (int64, error) {
	var count int64
	if err := r.db.Model(&model.DirectMessage{}).
		Where("chat_id = ? AND send_id <> ? AND is_read = ?", chatId, selfId, false).
		Count(&count).Error; err != nil {
		return 0, wrapDBErrorf(err, "统计未读消息 chat_id=%s", chatId)
	}
	return count, nil
}

// Create 创建消息
func (r *messageRepository) Create(message *model.DirectMessage) error {
	if err := r.db.Create(message).Error; err != nil {
		return wrapDBError(err, "创建消息")
	}
	return nil
}

// MarkReadByUuids 批量标记已读
// 条件带 is_read=false，已读的行不会被再次更新，保证 ReadAt 不回退
func (r *messageRepository) MarkReadByUuids(uuids []int64) error {
	if len(uuids) == 0 {
		return nil
	}
	if err := r.db.Model(&model.DirectMessage{}).
		Where("uuid IN ? AND is_read = ?", uuids, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": time.Now()}).Error; err != nil {
		return wrapDBError(err, "标记消息已读")
	}
	return nil
}

// FindUnreadByChat 查找会话内所有对方发送且未读的消息
// 标记已读前先取出消息行，用于发布逐条已读回执事件
func (r *messageRepository) FindUnreadByChat(chatId, readerId string) ([]model.DirectMessage, error) {
	var messages []model.DirectMessage
	if err := r.db.Where("chat_id = ? AND send_id <> ? AND is_read = ?", chatId, readerId, false).
		Order("uuid ASC").Find(&messages).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询未读消息 chat_id=%s", chatId)
	}
	return messages, nil
}

// ModerateByUuid 审核删除：替换内容并保留审计标记
func (r *messageRepository) ModerateByUuid(uuid int64, placeholder string) error {
	if err := r.db.Model(&model.DirectMessage{}).Where("uuid = ?", uuid).
		Updates(map[string]interface{}{"content": placeholder, "moderated": true}).Error; err != nil {
		return wrapDBErrorf(err, "审核删除消息 uuid=%d", uuid)
	}
	return nil
}

// FindUuidsByChatId 取会话内全部消息 ID
func (r *messageRepository) FindUuidsByChatId(chatId string) ([]int64, error) {
	var uuids []int64
	if err := r.db.Model(&model.DirectMessage{}).Where("chat_id = ?", chatId).
		Pluck("uuid", &uuids).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询消息ID列表 chat_id=%s", chatId)
	}
	return uuids, nil
}

// HardDeleteByChatId 物理删除会话内全部消息
func (r *messageRepository) HardDeleteByChatId(chatId string) error {
	if err := r.db.Unscoped().Where("chat_id = ?", chatId).Delete(&model.DirectMessage{}).Error; err != nil {
		return wrapDBErrorf(err, "删除会话消息 chat_id=%s", chatId)
	}
	return nil
}
