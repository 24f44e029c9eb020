package request

// FetchMessagesRequest 拉取消息请求
// 三种互斥模式，按哪个游标字段非零选择：
//   - 都为零：最新一页
//   - BeforeUuid：向历史方向翻页
//   - AfterUuid：向新消息方向翻页
//   - TargetUuid：锚点定位（深链），返回目标消息及其前后上下文
type FetchMessagesRequest struct {
	ChatId     string `json:"chat_id" validate:"required"`
	SelfId     string `json:"self_id" validate:"required"`
	BeforeUuid int64  `json:"before_uuid"`
	AfterUuid  int64  `json:"after_uuid"`
	TargetUuid int64  `json:"target_uuid"`
	// Limit 每页条数，0 取默认值
	Limit int `json:"limit"`
}
