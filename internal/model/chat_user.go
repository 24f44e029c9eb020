package model

import (
	"database/sql"

	"gorm.io/gorm"
)

// ChatUser 用户资料投影
// 资料主表由外部用户子系统维护，消息域只读取并按 Uuid 缓存
type ChatUser struct {
	gorm.Model

	// Uuid 消息域使用的 profile UUID
	Uuid string `gorm:"column:uuid;uniqueIndex;type:char(36);comment:profile uuid"`

	// AuthId 认证系统账号 ID，profile 与登录态之间的映射键
	AuthId string `gorm:"column:auth_id;uniqueIndex;type:char(36);not null;comment:认证账号id"`

	Nickname string `gorm:"column:nickname;type:varchar(40);not null;comment:昵称"`

	Avatar string `gorm:"column:avatar;type:varchar(255);comment:头像url"`

	Username string `gorm:"column:username;type:varchar(40);comment:用户名"`

	// BannedUntil 封禁截止时间，NULL 表示未封禁
	BannedUntil sql.NullTime `gorm:"column:banned_until;type:datetime;comment:封禁截止时间"`
}

func (ChatUser) TableName() string {
	return "chat_user"
}
