package repository

import (
	"linguachat/internal/model"

	"gorm.io/gorm"
)

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户 Repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// FindByUuid 按 profile UUID 查找
func (r *userRepository) FindByUuid(uuid string) (*model.ChatUser, error) {
	var user model.ChatUser
	if err := r.db.Where("uuid = ?", uuid).First(&user).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询用户 uuid=%s", uuid)
	}
	return &user, nil
}

// FindByUuids 批量按 UUID 查找
// 一次 IN 查询解析全部对端用户，会话列表不允许逐条查询
func (r *userRepository) FindByUuids(uuids []string) ([]model.ChatUser, error) {
	if len(uuids) == 0 {
		return nil, nil
	}
	var users []model.ChatUser
	if err := r.db.Where("uuid IN ?", uuids).Find(&users).Error; err != nil {
		return nil, wrapDBError(err, "批量查询用户")
	}
	return users, nil
}

// FindByAuthId 按认证账号 ID 查找 profile
func (r *userRepository) FindByAuthId(authId string) (*model.ChatUser, error) {
	var user model.ChatUser
	if err := r.db.Where("auth_id = ?", authId).First(&user).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询用户 auth_id=%s", authId)
	}
	return &user, nil
}

// Search 按昵称/用户名模糊搜索，排除指定用户
func (r *userRepository) Search(term, excludeUuid string, limit int) ([]model.ChatUser, error) {
	var users []model.ChatUser
	pattern := "%" + term + "%"
	if err := r.db.Where("(nickname LIKE ? OR username LIKE ?) AND uuid <> ?", pattern, pattern, excludeUuid).
		Limit(limit).Find(&users).Error; err != nil {
		return nil, wrapDBErrorf(err, "搜索用户 term=%s", term)
	}
	return users, nil
}

// Create 创建用户投影
func (r *userRepository) Create(user *model.ChatUser) error {
	if err := r.db.Create(user).Error; err != nil {
		return wrapDBError(err, "创建用户投影")
	}
	return nil
}
