package blob

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// gridfsStorage MongoDB GridFS 存储
// 文件名即上层生成的路径，媒体服务按文件名提供公开访问
type gridfsStorage struct {
	bucket     *gridfs.Bucket
	publicBase string
}

// NewGridFSStorage 连接 MongoDB 并创建 GridFS 存储
func NewGridFSStorage(ctx context.Context, uri, dbName, publicBase string) (Storage, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect failed: %w", err)
	}
	bucket, err := gridfs.NewBucket(client.Database(dbName))
	if err != nil {
		return nil, fmt.Errorf("gridfs bucket failed: %w", err)
	}
	return &gridfsStorage{
		bucket:     bucket,
		publicBase: strings.TrimSuffix(publicBase, "/"),
	}, nil
}

// Upload 写入 GridFS
func (s *gridfsStorage) Upload(ctx context.Context, path string, r io.Reader) error {
	opts := options.GridFSUpload().SetMetadata(bson.M{
		"uploaded_at": time.Now(),
	})
	stream, err := s.bucket.OpenUploadStream(path, opts)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	defer stream.Close()

	if _, err = io.Copy(stream, r); err != nil {
		return fmt.Errorf("file copy failed: %w", err)
	}
	return nil
}

// PublicURL 返回公开访问地址
func (s *gridfsStorage) PublicURL(path string) string {
	return s.publicBase + "/" + path
}
