// Package redis 定义缓存服务接口
// 遵循依赖倒置原则，Service 层依赖此接口而非具体 Redis 实现
package redis

import (
	"context"
	"time"
)

// CacheService 缓存服务接口
// 消息域用它缓存用户资料投影（profile uuid -> JSON）
type CacheService interface {
	// Set 设置键值对并指定过期时间
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// GetOrError 获取键对应的值（键不存在返回 redis.Nil 错误）
	GetOrError(ctx context.Context, key string) (string, error)
	// Delete 删除键（如果存在）
	Delete(ctx context.Context, key string) error
}

// AsyncCacheService 异步缓存服务接口
// 提供异步任务提交能力，用于非阻塞的缓存回填和已读回执落库
type AsyncCacheService interface {
	CacheService
	// SubmitTask 提交异步任务，队列满时降级为同步执行
	SubmitTask(action func())
}
