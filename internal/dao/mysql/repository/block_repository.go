package repository

import (
	"time"

	"linguachat/internal/model"

	"gorm.io/gorm"
)

type blockRepository struct {
	db *gorm.DB
}

// NewBlockRepository 创建拉黑关系 Repository
func NewBlockRepository(db *gorm.DB) BlockRepository {
	return &blockRepository{db: db}
}

// FindActiveBetween 查找两人之间生效中的拉黑行（双向）
func (r *blockRepository) FindActiveBetween(oneId, twoId string) ([]model.UserBlock, error) {
	var blocks []model.UserBlock
	if err := r.db.Where(
		"((blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)) AND ended_at IS NULL",
		oneId, twoId, twoId, oneId).Find(&blocks).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询拉黑关系 one=%s two=%s", oneId, twoId)
	}
	return blocks, nil
}

// Create 创建拉黑关系
func (r *blockRepository) Create(block *model.UserBlock) error {
	if err := r.db.Create(block).Error; err != nil {
		return wrapDBError(err, "创建拉黑关系")
	}
	return nil
}

// End 解除拉黑
func (r *blockRepository) End(blockerId, blockedId string) error {
	if err := r.db.Model(&model.UserBlock{}).
		Where("blocker_id = ? AND blocked_id = ? AND ended_at IS NULL", blockerId, blockedId).
		Update("ended_at", time.Now()).Error; err != nil {
		return wrapDBErrorf(err, "解除拉黑 blocker=%s blocked=%s", blockerId, blockedId)
	}
	return nil
}
