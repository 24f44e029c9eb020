// Package blob 提供附件的二进制存储抽象
// 消息域只依赖 Storage 接口，不关心附件最终落在本地磁盘还是 GridFS
package blob

import (
	"context"
	"fmt"
	"io"

	"linguachat/internal/config"
)

// Storage 附件存储接口
type Storage interface {
	// Upload 将内容写入指定路径，路径由上层保证唯一
	Upload(ctx context.Context, path string, r io.Reader) error
	// PublicURL 返回路径对应的公开访问地址
	PublicURL(path string) string
}

// New 根据配置创建存储后端
// blobMode: "local"（默认）或 "gridfs"
func New(ctx context.Context, cfg *config.BlobConfig) (Storage, error) {
	switch cfg.BlobMode {
	case "", "local":
		return NewLocalStorage(cfg.StaticPath, cfg.PublicBase), nil
	case "gridfs":
		return NewGridFSStorage(ctx, cfg.MongoURI, cfg.MongoDB, cfg.PublicBase)
	default:
		return nil, fmt.Errorf("unknown blob mode %q", cfg.BlobMode)
	}
}
