package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// localStorage 本地静态目录存储
// 附件写入 baseDir 下，由外部静态文件服务对外提供访问
type localStorage struct {
	baseDir    string
	publicBase string
}

// NewLocalStorage 创建本地存储
func NewLocalStorage(baseDir, publicBase string) Storage {
	return &localStorage{
		baseDir:    baseDir,
		publicBase: strings.TrimSuffix(publicBase, "/"),
	}
}

// Upload 将内容写入本地文件
// 先建目录再写文件，写入失败时清理半成品
func (s *localStorage) Upload(ctx context.Context, path string, r io.Reader) error {
	full := filepath.Join(s.baseDir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	f, err := os.Create(full)
	if err != nil {
		return err
	}
	if _, err = io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(full)
		return err
	}
	return f.Close()
}

// PublicURL 返回公开访问地址
func (s *localStorage) PublicURL(path string) string {
	return s.publicBase + "/" + path
}
