// Package service 提供业务逻辑层
// 本文件实现 Service 层的依赖注入和聚合
package service

import (
	"linguachat/internal/dao/mysql/repository"
	myredis "linguachat/internal/dao/redis"
	"linguachat/internal/infrastructure/blob"
	"linguachat/internal/infrastructure/changefeed"
	"linguachat/internal/service/block"
	"linguachat/internal/service/conversation"
	"linguachat/internal/service/message"
	"linguachat/internal/service/user"
)

// Services 聚合所有 Service 实例
// 作为依赖注入的入口，同步上下文通过此结构访问各个 Service
type Services struct {
	User         UserService
	Block        BlockService
	Conversation ConversationService
	Message      MessageService
}

// Deps Service 层的外部依赖
// cache / feed / store 都允许为 nil，对应功能降级（同步执行、不发事件、禁用附件）
type Deps struct {
	Repos *repository.Repositories
	Cache myredis.AsyncCacheService
	Feed  changefeed.Feed
	Store blob.Storage
}

// NewServices 创建并注入所有 Service 实例
func NewServices(deps Deps) *Services {
	userSvc := user.NewUserService(deps.Repos, deps.Cache)
	blockSvc := block.NewBlockService(deps.Repos)
	conversationSvc := conversation.NewConversationService(deps.Repos, userSvc, deps.Feed)
	messageSvc := message.NewMessageService(deps.Repos, blockSvc, deps.Feed, deps.Store, deps.Cache)

	return &Services{
		User:         userSvc,
		Block:        blockSvc,
		Conversation: conversationSvc,
		Message:      messageSvc,
	}
}

// Svc 全局 Services 实例
var Svc *Services

// InitServices 初始化全局 Services 实例
// 应在 Repository、Redis、Feed 初始化之后调用
func InitServices(deps Deps) {
	Svc = NewServices(deps)
}
