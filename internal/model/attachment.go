package model

import (
	"database/sql"

	"gorm.io/gorm"
)

// 附件类型，按声明的 MIME 主类型归类
const (
	AttachmentImage = "image"
	AttachmentVideo = "video"
	AttachmentFile  = "file"
)

// Attachment 消息附件模型
// 上传时创建，之后不可变，生命周期跟随所属消息
type Attachment struct {
	gorm.Model

	// Uuid 附件唯一标识
	Uuid string `gorm:"column:uuid;uniqueIndex;type:char(36);comment:附件uuid"`

	// MessageUuid 所属消息的雪花 ID
	MessageUuid int64 `gorm:"column:message_uuid;index;type:bigint;not null;comment:所属消息雪花ID"`

	// Type 附件类型：image / video / file
	Type string `gorm:"column:type;type:char(10);not null;comment:附件类型"`

	// Url 公开访问地址
	Url string `gorm:"column:url;type:varchar(255);not null;comment:附件url"`

	// Name 原始文件名
	Name string `gorm:"column:name;type:varchar(255);not null;comment:文件名"`

	// Width / Height 图片或视频的像素尺寸，其他类型为空
	Width  sql.NullInt32 `gorm:"column:width;comment:宽度"`
	Height sql.NullInt32 `gorm:"column:height;comment:高度"`
}

// TableName 指定表名
func (Attachment) TableName() string {
	return "attachment"
}
