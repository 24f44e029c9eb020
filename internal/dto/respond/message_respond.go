package respond

// AttachmentRespond 附件视图
type AttachmentRespond struct {
	Uuid   string `json:"uuid"`
	Type   string `json:"type"`
	Url    string `json:"url"`
	Name   string `json:"name"`
	Width  int32  `json:"width,omitempty"`
	Height int32  `json:"height,omitempty"`
}

// MessageRespond 消息视图
// 同一结构既作为拉取结果返回，也作为变更事件的载荷
type MessageRespond struct {
	Uuid        int64               `json:"uuid"`
	ChatId      string              `json:"chat_id"`
	SendId      string              `json:"send_id"`
	Content     string              `json:"content"`
	IsRead      bool                `json:"is_read"`
	IsSystem    bool                `json:"is_system"`
	Moderated   bool                `json:"moderated"`
	CreatedAt   string              `json:"created_at"`
	Attachments []AttachmentRespond `json:"attachments,omitempty"`
}

// FetchMessagesRespond 拉取消息结果
// Messages 恒为时间升序；HasMore 的方向取决于拉取模式：
// 历史翻页指向更早，向后翻页和锚点定位指向更新
type FetchMessagesRespond struct {
	Messages []MessageRespond `json:"messages"`
	HasMore  bool             `json:"has_more"`
}
