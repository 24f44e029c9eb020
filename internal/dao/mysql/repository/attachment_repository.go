package repository

import (
	"linguachat/internal/model"

	"gorm.io/gorm"
)

type attachmentRepository struct {
	db *gorm.DB
}

// NewAttachmentRepository 创建附件 Repository
func NewAttachmentRepository(db *gorm.DB) AttachmentRepository {
	return &attachmentRepository{db: db}
}

// CreateBatch 批量创建附件
func (r *attachmentRepository) CreateBatch(attachments []model.Attachment) error {
	if len(attachments) == 0 {
		return nil
	}
	if err := r.db.Create(&attachments).Error; err != nil {
		return wrapDBError(err, "创建附件")
	}
	return nil
}

// FindByMessageUuids 批量查找多条消息的附件
func (r *attachmentRepository) FindByMessageUuids(messageUuids []int64) ([]model.Attachment, error) {
	if len(messageUuids) == 0 {
		return nil, nil
	}
	var attachments []model.Attachment
	if err := r.db.Where("message_uuid IN ?", messageUuids).Order("id ASC").Find(&attachments).Error; err != nil {
		return nil, wrapDBError(err, "查询附件")
	}
	return attachments, nil
}

// HardDeleteByMessageUuids 物理删除指定消息的全部附件
func (r *attachmentRepository) HardDeleteByMessageUuids(messageUuids []int64) error {
	if len(messageUuids) == 0 {
		return nil
	}
	if err := r.db.Unscoped().Where("message_uuid IN ?", messageUuids).Delete(&model.Attachment{}).Error; err != nil {
		return wrapDBError(err, "删除附件")
	}
	return nil
}
