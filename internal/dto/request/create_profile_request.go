package request

// CreateProfileRequest 创建用户资料投影请求
// 资料主数据在外部认证系统，这里只保存消息域需要的投影
type CreateProfileRequest struct {
	AuthId   string `json:"auth_id" validate:"required"`
	Nickname string `json:"nickname" validate:"required"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}
