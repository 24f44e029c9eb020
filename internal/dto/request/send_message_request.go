package request

import "io"

// AttachmentUpload 待上传的附件文件
// MimeType 为客户端声明的媒体类型，据此归类为 image/video/file
type AttachmentUpload struct {
	Name     string    `json:"name" validate:"required"`
	MimeType string    `json:"mime_type" validate:"required"`
	Data     io.Reader `json:"-" validate:"required"`
	Width    int32     `json:"width"`
	Height   int32     `json:"height"`
}

// SendMessageRequest 发送消息请求
// Content 和 Attachments 不能同时为空（纯附件消息的 Content 为空串）
type SendMessageRequest struct {
	ChatId      string             `json:"chat_id" validate:"required"`
	SendId      string             `json:"send_id" validate:"required"`
	Content     string             `json:"content"`
	Attachments []AttachmentUpload `json:"attachments" validate:"dive"`
}
