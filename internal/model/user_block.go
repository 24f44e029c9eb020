package model

import (
	"database/sql"

	"gorm.io/gorm"
)

// UserBlock 拉黑关系模型
// 行按方向存储（blocker -> blocked），EndedAt 为 NULL 表示拉黑生效中
type UserBlock struct {
	gorm.Model
	BlockerId string       `gorm:"column:blocker_id;index;type:char(36);not null;comment:拉黑发起者"`
	BlockedId string       `gorm:"column:blocked_id;index;type:char(36);not null;comment:被拉黑者"`
	EndedAt   sql.NullTime `gorm:"column:ended_at;type:datetime;comment:解除时间，NULL为生效中"`
}

func (UserBlock) TableName() string {
	return "user_block"
}
