package respond

// ChatUserRespond 用户资料视图
// 资料解析失败时降级为占位用户（nickname="unknown"），不让整个列表失败
type ChatUserRespond struct {
	UserId   string `json:"user_id"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
	Username string `json:"username,omitempty"`
}

// ConversationListItem 会话列表项（视图模型，不落库）
// 每次列表加载整体重建；打开会话时只做未读清零等定点修补
type ConversationListItem struct {
	ChatId        string          `json:"chat_id"`
	OtherUser     ChatUserRespond `json:"other_user"`
	LastMessage   string          `json:"last_message"`
	LastMessageAt string          `json:"last_message_at"`
	UnreadCount   int64           `json:"unread_count"`
	IsNewChat     bool            `json:"is_new_chat"`
}
