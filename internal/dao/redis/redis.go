package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisCache AsyncCacheService 的 Redis 实现
// 自带一个任务 Worker Pool，用于异步缓存回填等非关键路径操作
type redisCache struct {
	client   *redis.Client
	taskChan chan func()
}

// NewRedisCache 创建 Redis 缓存服务
// workerNum: 后台协程数量
// bufferSize: 任务通道缓冲区大小
func NewRedisCache(client *redis.Client, workerNum int, bufferSize int) AsyncCacheService {
	c := &redisCache{
		client:   client,
		taskChan: make(chan func(), bufferSize),
	}
	for i := 0; i < workerNum; i++ {
		go c.startWorker()
	}
	zap.L().Info("cache workers started", zap.Int("workers", workerNum), zap.Int("buffer", bufferSize))
	return c
}

// startWorker 单个 Worker 消费循环，panic 后自动重启
func (c *redisCache) startWorker() {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("cache worker panic", zap.Any("recover", r))
			go c.startWorker() // 重启
		}
	}()

	for task := range c.taskChan {
		if task != nil {
			task()
		}
	}
}

// SubmitTask 提交异步任务
func (c *redisCache) SubmitTask(action func()) {
	select {
	case c.taskChan <- action:
		// 成功放入
	default:
		// 降级：同步执行
		zap.L().Warn("cache task channel full, executing synchronously")
		action()
	}
}

// Set 设置键值对并指定过期时间
func (c *redisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// GetOrError 获取键对应的值，键不存在返回 redis.Nil
func (c *redisCache) GetOrError(ctx context.Context, key string) (string, error) {
	return c.client.Get(ctx, key).Result()
}

// Delete 删除键
func (c *redisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
