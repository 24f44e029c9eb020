// Package user 实现用户资料投影的业务逻辑
// 账号本身由外部认证系统管理，这里只维护消息域需要的资料视图，
// 并通过「进程内 memo + Redis + 数据库」三级读径降低热点查询压力
package user

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"linguachat/internal/dao/mysql/repository"
	myredis "linguachat/internal/dao/redis"
	"linguachat/internal/dto/request"
	"linguachat/internal/dto/respond"
	"linguachat/internal/infrastructure/validate"
	"linguachat/internal/model"
	"linguachat/pkg/constants"
	"linguachat/pkg/errorx"
	"linguachat/pkg/util/jwt"
)

// profileKeyPrefix Redis 中资料缓存键前缀
const profileKeyPrefix = "chat_user:"

// userService 用户资料业务实现
type userService struct {
	repos *repository.Repositories
	cache myredis.AsyncCacheService // 可为 nil（测试或未启用 Redis 时）

	// memo 进程内资料缓存
	// 资料投影几乎不变更，进程生命周期内不做淘汰；占位资料不会写入，
	// 这样外部系统补齐资料后下一次查询能拿到真实数据
	mu   sync.RWMutex
	memo map[string]respond.ChatUserRespond
}

// NewUserService 构造函数，注入 Repository 和缓存依赖
func NewUserService(repos *repository.Repositories, cache myredis.AsyncCacheService) *userService {
	return &userService{
		repos: repos,
		cache: cache,
		memo:  make(map[string]respond.ChatUserRespond),
	}
}

// toRespond 模型转视图
func toRespond(u *model.ChatUser) respond.ChatUserRespond {
	return respond.ChatUserRespond{
		UserId:   u.Uuid,
		Nickname: u.Nickname,
		Avatar:   u.Avatar,
		Username: u.Username,
	}
}

// placeholderProfile 占位资料
// 资料查不到时降级使用，避免单个脏引用拖垮整个会话列表
func placeholderProfile(uuid string) respond.ChatUserRespond {
	return respond.ChatUserRespond{
		UserId:   uuid,
		Nickname: "unknown",
	}
}

// CurrentProfile 根据会话令牌解析当前用户的资料
func (u *userService) CurrentProfile(token string) (*respond.ChatUserRespond, error) {
	claims, err := jwt.ParseToken(token)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeUnauthorized, "登录状态无效，请重新登录")
	}
	user, err := u.repos.User.FindByAuthId(claims.UserID)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return nil, errorx.New(errorx.CodeUserNotExist, "用户资料不存在")
		}
		zap.L().Error(err.Error())
		return nil, errorx.ErrServerBusy
	}
	rsp := toRespond(user)
	return &rsp, nil
}

// ResolveProfileId 将认证账号 ID 转换为消息域 profile ID
// 两套 ID 不能混用：会话和消息表里存的都是 profile ID
func (u *userService) ResolveProfileId(authId string) (string, error) {
	if authId == "" {
		return "", errorx.ErrInvalidParam
	}
	user, err := u.repos.User.FindByAuthId(authId)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return "", errorx.New(errorx.CodeUserNotExist, "用户资料不存在")
		}
		zap.L().Error(err.Error())
		return "", errorx.ErrServerBusy
	}
	return user.Uuid, nil
}

// GetByUuids 批量获取用户资料
// 读径：进程内 memo -> Redis -> 数据库（一次 IN 查询）
// 数据库命中后异步回填 Redis；全部落空的 ID 返回占位资料
func (u *userService) GetByUuids(ctx context.Context, uuids []string) (map[string]respond.ChatUserRespond, error) {
	result := make(map[string]respond.ChatUserRespond, len(uuids))

	var missing []string
	u.mu.RLock()
	for _, id := range uuids {
		if p, ok := u.memo[id]; ok {
			result[id] = p
		} else {
			missing = append(missing, id)
		}
	}
	u.mu.RUnlock()

	if len(missing) > 0 && u.cache != nil {
		still := missing[:0]
		for _, id := range missing {
			val, err := u.cache.GetOrError(ctx, profileKeyPrefix+id)
			if err != nil {
				if !errors.Is(err, goredis.Nil) {
					zap.L().Warn("读取资料缓存失败", zap.String("uuid", id), zap.Error(err))
				}
				still = append(still, id)
				continue
			}
			var p respond.ChatUserRespond
			if err := json.Unmarshal([]byte(val), &p); err != nil {
				zap.L().Warn("资料缓存内容损坏", zap.String("uuid", id), zap.Error(err))
				still = append(still, id)
				continue
			}
			result[id] = p
		}
		missing = still
	}

	if len(missing) > 0 {
		users, err := u.repos.User.FindByUuids(missing)
		if err != nil {
			zap.L().Error(err.Error())
			return nil, errorx.ErrServerBusy
		}
		found := make(map[string]struct{}, len(users))
		for i := range users {
			p := toRespond(&users[i])
			result[p.UserId] = p
			found[p.UserId] = struct{}{}
		}
		for _, id := range missing {
			if _, ok := found[id]; !ok {
				result[id] = placeholderProfile(id)
			}
		}

		u.mu.Lock()
		for i := range users {
			p := toRespond(&users[i])
			u.memo[p.UserId] = p
		}
		u.mu.Unlock()

		if u.cache != nil && len(users) > 0 {
			profiles := make([]respond.ChatUserRespond, 0, len(users))
			for i := range users {
				profiles = append(profiles, toRespond(&users[i]))
			}
			u.cache.SubmitTask(func() {
				bg := context.Background()
				for _, p := range profiles {
					data, err := json.Marshal(p)
					if err != nil {
						continue
					}
					if err := u.cache.Set(bg, profileKeyPrefix+p.UserId, string(data),
						time.Duration(constants.REDIS_TIMEOUT)*time.Minute); err != nil {
						zap.L().Warn("回填资料缓存失败", zap.String("uuid", p.UserId), zap.Error(err))
					}
				}
			})
		}
	}

	return result, nil
}

// Search 按昵称/用户名模糊搜索用户，排除自己
func (u *userService) Search(selfId, keyword string) ([]respond.ChatUserRespond, error) {
	if keyword == "" {
		return []respond.ChatUserRespond{}, nil
	}
	users, err := u.repos.User.Search(keyword, selfId, constants.MESSAGE_PAGE_SIZE)
	if err != nil {
		zap.L().Error(err.Error())
		return nil, errorx.ErrServerBusy
	}
	rsp := make([]respond.ChatUserRespond, 0, len(users))
	for i := range users {
		rsp = append(rsp, toRespond(&users[i]))
	}
	return rsp, nil
}

// CreateProfile 创建资料投影
// 由外部系统在账号注册后同步调用；auth_id 唯一，重复同步返回已存在错误
func (u *userService) CreateProfile(req request.CreateProfileRequest) (*respond.ChatUserRespond, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	user := &model.ChatUser{
		Uuid:     uuid.NewString(),
		AuthId:   req.AuthId,
		Nickname: req.Nickname,
		Username: req.Username,
		Avatar:   req.Avatar,
	}
	if err := u.repos.User.Create(user); err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, errorx.New(errorx.CodeInvalidParam, "该账号的资料已存在")
		}
		zap.L().Error(err.Error())
		return nil, errorx.ErrServerBusy
	}
	rsp := toRespond(user)

	u.mu.Lock()
	u.memo[user.Uuid] = rsp
	u.mu.Unlock()

	return &rsp, nil
}
