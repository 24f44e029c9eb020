package message

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"linguachat/internal/dto/request"
	"linguachat/internal/infrastructure/blob"
	"linguachat/internal/model"
	"linguachat/pkg/errorx"
)

// classifyAttachment 按声明的 MIME 主类型归类
func classifyAttachment(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return model.AttachmentImage
	case strings.HasPrefix(mimeType, "video/"):
		return model.AttachmentVideo
	default:
		return model.AttachmentFile
	}
}

// uploadAttachments 上传消息的全部附件并构造附件行
// 全有或全无：任何一个上传失败，整条消息中止发送。
// 已传到存储里的文件不回滚，没有附件行引用它们，属于可接受的孤儿数据
func uploadAttachments(ctx context.Context, store blob.Storage, chatId string, messageUuid int64, uploads []request.AttachmentUpload) ([]model.Attachment, error) {
	if len(uploads) == 0 {
		return nil, nil
	}
	if store == nil {
		return nil, errorx.New(errorx.CodeUploadError, "附件存储未配置")
	}

	attachments := make([]model.Attachment, 0, len(uploads))
	for i := range uploads {
		up := &uploads[i]
		attUuid := uuid.NewString()
		path := fmt.Sprintf("chats/%s/%s%s", chatId, attUuid, filepath.Ext(up.Name))
		if err := store.Upload(ctx, path, up.Data); err != nil {
			return nil, errorx.Wrapf(err, errorx.CodeUploadError, "附件 %s 上传失败", up.Name)
		}
		att := model.Attachment{
			Uuid:        attUuid,
			MessageUuid: messageUuid,
			Type:        classifyAttachment(up.MimeType),
			Url:         store.PublicURL(path),
			Name:        up.Name,
		}
		if up.Width > 0 {
			att.Width = sql.NullInt32{Int32: up.Width, Valid: true}
		}
		if up.Height > 0 {
			att.Height = sql.NullInt32{Int32: up.Height, Valid: true}
		}
		attachments = append(attachments, att)
	}
	return attachments, nil
}
