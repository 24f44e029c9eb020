package repository

import (
	"time"

	"linguachat/internal/model"

	"gorm.io/gorm"
)

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository 创建会话 Repository
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

// FindByUuid 按会话 UUID 查找
func (r *chatRepository) FindByUuid(uuid string) (*model.DirectChat, error) {
	var chat model.DirectChat
	if err := r.db.Where("uuid = ?", uuid).First(&chat).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询会话 uuid=%s", uuid)
	}
	return &chat, nil
}

// FindByPair 按有序用户对查找
func (r *chatRepository) FindByPair(aId, bId string) (*model.DirectChat, error) {
	var chat model.DirectChat
	if err := r.db.Where("participant_a_id = ? AND participant_b_id = ?", aId, bId).First(&chat).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询会话 a=%s b=%s", aId, bId)
	}
	return &chat, nil
}

// FindActiveByUserId 查找用户仍在其中的所有会话
// 按最后消息时间倒序，从未有过消息的会话排在最后
func (r *chatRepository) FindActiveByUserId(userId string) ([]model.DirectChat, error) {
	var chats []model.DirectChat
	if err := r.db.Where("(participant_a_id = ? AND a_active = ?) OR (participant_b_id = ? AND b_active = ?)",
		userId, true, userId, true).Order("last_message_at DESC").Find(&chats).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询会话列表 user_id=%s", userId)
	}
	return chats, nil
}

// Create 创建会话
func (r *chatRepository) Create(chat *model.DirectChat) error {
	if err := r.db.Create(chat).Error; err != nil {
		// 唯一键冲突原样透出，由 Service 层收敛并发创建
		if IsDuplicateKey(err) {
			return err
		}
		return wrapDBError(err, "创建会话")
	}
	return nil
}

// UpdateSide 更新某一侧的字段
// updates 的 key 不带侧前缀（如 "active"、"left_at"、"notified"），由本方法补齐
func (r *chatRepository) UpdateSide(chatUuid, side string, updates map[string]interface{}) error {
	prefixed := make(map[string]interface{}, len(updates))
	for k, v := range updates {
		prefixed[side+"_"+k] = v
	}
	if err := r.db.Model(&model.DirectChat{}).Where("uuid = ?", chatUuid).Updates(prefixed).Error; err != nil {
		return wrapDBErrorf(err, "更新会话 uuid=%s side=%s", chatUuid, side)
	}
	return nil
}

// UpdateLastMessageAt 刷新最后消息时间
func (r *chatRepository) UpdateLastMessageAt(chatUuid string, t time.Time) error {
	if err := r.db.Model(&model.DirectChat{}).Where("uuid = ?", chatUuid).Update("last_message_at", t).Error; err != nil {
		return wrapDBErrorf(err, "更新最后消息时间 uuid=%s", chatUuid)
	}
	return nil
}

// HardDelete 物理删除会话
// 仅在双方都退出后由 Service 层的级联清理调用
func (r *chatRepository) HardDelete(chatUuid string) error {
	if err := r.db.Unscoped().Where("uuid = ?", chatUuid).Delete(&model.DirectChat{}).Error; err != nil {
		return wrapDBErrorf(err, "删除会话 uuid=%s", chatUuid)
	}
	return nil
}
