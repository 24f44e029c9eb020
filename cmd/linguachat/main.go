package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"linguachat/internal/config"
	dao "linguachat/internal/dao/mysql"
	myredis "linguachat/internal/dao/redis"
	"linguachat/internal/infrastructure/blob"
	"linguachat/internal/infrastructure/changefeed"
	"linguachat/internal/infrastructure/logger"
	"linguachat/internal/infrastructure/validate"
	"linguachat/internal/service"
	"linguachat/pkg/util/jwt"
	"linguachat/pkg/util/snowflake"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	conf := config.GetConfig()

	// 2. 初始化日志
	if err := logger.Init(&conf.LogConfig, conf.MainConfig.Mode); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	zap.L().Info("日志初始化成功")

	// 3. 初始化参数校验器
	if err := validate.Init("zh"); err != nil {
		zap.L().Fatal("参数校验器初始化失败", zap.Error(err))
	}

	// 4. 初始化数据库
	dao.Init()
	zap.L().Info("数据库初始化成功")

	// 5. 初始化 Redis
	myredis.Init()
	zap.L().Info("Redis 初始化成功")

	// 6. 初始化 JWT 和雪花节点
	jwt.Init(conf.JWTConfig.Secret)
	snowflake.Init()

	// 7. 初始化变更事件源
	feed, err := changefeed.New(&conf.FeedConfig)
	if err != nil {
		zap.L().Fatal("事件源初始化失败", zap.Error(err))
	}
	go feed.Start()
	zap.L().Info("事件源初始化成功", zap.String("mode", conf.FeedConfig.FeedMode))

	// 8. 初始化附件存储
	store, err := newBlobStorage(&conf.BlobConfig)
	if err != nil {
		zap.L().Fatal("附件存储初始化失败", zap.Error(err))
	}

	// 9. 初始化 Service 层 (依赖注入)
	service.InitServices(service.Deps{
		Repos: dao.Repos,
		Cache: myredis.GetCacheService(),
		Feed:  feed,
		Store: store,
	})
	zap.L().Info("Service 层初始化成功")

	// 设置信号监听
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// 等待信号
	<-quit

	feed.Close()

	zap.L().Info("关闭服务...")

	zap.L().Info("服务已关闭")
}

// newBlobStorage 根据配置创建附件存储
// blobMode 为空时不启用附件，消息服务对 nil 存储做降级处理
func newBlobStorage(cfg *config.BlobConfig) (blob.Storage, error) {
	switch cfg.BlobMode {
	case "":
		return nil, nil
	case "local":
		return blob.NewLocalStorage(cfg.StaticPath, cfg.PublicBase), nil
	case "gridfs":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return blob.NewGridFSStorage(ctx, cfg.MongoURI, cfg.MongoDB, cfg.PublicBase)
	default:
		return nil, fmt.Errorf("unknown blob mode %q", cfg.BlobMode)
	}
}
