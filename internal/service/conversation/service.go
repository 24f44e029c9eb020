// Package conversation 实现一对一会话的业务逻辑
// 核心规则：无序用户对只存在一行会话；退出是软标记，双方都退出才物理删除；
// 重新加入不恢复退出前的历史（退出时间作为可见性下限）
package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"linguachat/internal/dao/mysql/repository"
	"linguachat/internal/dto/respond"
	"linguachat/internal/infrastructure/changefeed"
	"linguachat/internal/model"
	"linguachat/pkg/constants"
	"linguachat/pkg/errorx"
	"linguachat/pkg/util/random"
)

// profileProvider 会话列表需要的资料查询能力（由 user.Service 提供）
type profileProvider interface {
	GetByUuids(ctx context.Context, uuids []string) (map[string]respond.ChatUserRespond, error)
}

// conversationService 会话业务实现
type conversationService struct {
	repos    *repository.Repositories
	profiles profileProvider
	feed     changefeed.Feed // 可为 nil（不需要实时事件的场景）
}

// NewConversationService 构造函数
func NewConversationService(repos *repository.Repositories, profiles profileProvider, feed changefeed.Feed) *conversationService {
	return &conversationService{repos: repos, profiles: profiles, feed: feed}
}

// toChatRespond 模型转视图
func toChatRespond(chat *model.DirectChat) respond.ChatRespond {
	rsp := respond.ChatRespond{
		ChatId:         chat.Uuid,
		ParticipantAId: chat.ParticipantAId,
		ParticipantBId: chat.ParticipantBId,
	}
	if chat.LastMessageAt.Valid {
		rsp.LastMessageAt = chat.LastMessageAt.Time.Format(constants.TIME_LAYOUT)
	}
	return rsp
}

// publishChat 发布会话表变更事件
func (c *conversationService) publishChat(ctx context.Context, evType string, chat *model.DirectChat, userIds []string) {
	if c.feed == nil {
		return
	}
	data, err := json.Marshal(toChatRespond(chat))
	if err != nil {
		zap.L().Error("序列化会话事件失败", zap.Error(err))
		return
	}
	ev := changefeed.Event{
		Table:   changefeed.TableChat,
		Type:    evType,
		UserIds: userIds,
		New:     data,
	}
	if err := c.feed.Publish(ctx, ev); err != nil {
		zap.L().Warn("发布会话事件失败", zap.String("chat_id", chat.Uuid), zap.Error(err))
	}
}

// Resolve 获取或创建与对方的会话
// 三种情况：已存在且自己在其中（直接返回）、已存在但自己已退出（重新加入）、
// 不存在（创建，创建方无新会话提示，对方有）。
// 两端同时发起时靠用户对唯一索引收敛到同一行
func (c *conversationService) Resolve(ctx context.Context, selfId, otherId string) (*respond.ChatRespond, error) {
	if selfId == "" || otherId == "" || selfId == otherId {
		return nil, errorx.ErrInvalidParam
	}
	aId, bId := model.CanonicalPair(selfId, otherId)

	chat, err := c.repos.Chat.FindByPair(aId, bId)
	if err != nil && errorx.GetCode(err) != errorx.CodeNotFound {
		zap.L().Error(err.Error())
		return nil, errorx.ErrServerBusy
	}

	if chat == nil || errorx.GetCode(err) == errorx.CodeNotFound {
		newChat := &model.DirectChat{
			Uuid:           "C" + random.GetNowAndLenRandomString(13),
			ParticipantAId: aId,
			ParticipantBId: bId,
			AActive:        true,
			BActive:        true,
			// 创建方不提示新会话，对方提示
			ANotified: aId != selfId,
			BNotified: bId != selfId,
		}
		createErr := c.repos.Chat.Create(newChat)
		if createErr == nil {
			c.publishChat(ctx, changefeed.EventInsert, newChat, []string{aId, bId})
			rsp := toChatRespond(newChat)
			return &rsp, nil
		}
		if !repository.IsDuplicateKey(createErr) {
			zap.L().Error(createErr.Error())
			return nil, errorx.ErrServerBusy
		}
		// 对端抢先创建，回查已存在的那一行
		chat, err = c.repos.Chat.FindByPair(aId, bId)
		if err != nil {
			zap.L().Error(err.Error())
			return nil, errorx.ErrServerBusy
		}
	}

	// 已退出则重新加入；退出时间保留，旧消息不再可见
	if !chat.ActiveOf(selfId) {
		updates := map[string]interface{}{
			"active":   true,
			"notified": false,
		}
		if err := c.repos.Chat.UpdateSide(chat.Uuid, chat.SideOf(selfId), updates); err != nil {
			zap.L().Error(err.Error())
			return nil, errorx.ErrServerBusy
		}
		if chat.SideOf(selfId) == "a" {
			chat.AActive = true
			chat.ANotified = false
		} else {
			chat.BActive = true
			chat.BNotified = false
		}
		c.publishChat(ctx, changefeed.EventUpdate, chat, []string{selfId})
	}

	rsp := toChatRespond(chat)
	return &rsp, nil
}

// Leave 退出会话（幂等）
// 只翻转自己一侧的标记并记录退出时间；双方都退出后，
// 在事务里级联物理删除附件、消息和会话行
func (c *conversationService) Leave(ctx context.Context, selfId, chatId string) error {
	chat, err := c.repos.Chat.FindByUuid(chatId)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return nil // 已被删除，幂等
		}
		zap.L().Error(err.Error())
		return errorx.ErrServerBusy
	}
	side := chat.SideOf(selfId)
	if side == "" {
		return errorx.ErrPermission
	}
	if !chat.ActiveOf(selfId) {
		return nil // 已退出，幂等
	}

	updates := map[string]interface{}{
		"active":  false,
		"left_at": sql.NullTime{Time: time.Now(), Valid: true},
	}
	if err := c.repos.Chat.UpdateSide(chat.Uuid, side, updates); err != nil {
		zap.L().Error(err.Error())
		return errorx.ErrServerBusy
	}

	// 重新读取，避免双方并发退出时都看到对方"还在"而漏删
	fresh, err := c.repos.Chat.FindByUuid(chatId)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return nil
		}
		zap.L().Error(err.Error())
		return errorx.ErrServerBusy
	}

	if !fresh.AActive && !fresh.BActive {
		err := c.repos.Transaction(func(tx *repository.Repositories) error {
			uuids, err := tx.Message.FindUuidsByChatId(chatId)
			if err != nil {
				return err
			}
			if len(uuids) > 0 {
				if err := tx.Attachment.HardDeleteByMessageUuids(uuids); err != nil {
					return err
				}
			}
			if err := tx.Message.HardDeleteByChatId(chatId); err != nil {
				return err
			}
			return tx.Chat.HardDelete(chatId)
		})
		if err != nil {
			zap.L().Error("级联删除会话失败", zap.String("chat_id", chatId), zap.Error(err))
			return errorx.ErrServerBusy
		}
		c.publishChat(ctx, changefeed.EventDelete, fresh, []string{fresh.ParticipantAId, fresh.ParticipantBId})
		return nil
	}

	c.publishChat(ctx, changefeed.EventUpdate, fresh, []string{selfId})
	return nil
}

// Restore 按会话 ID 重新加入已退出的会话（幂等）
// 与 Resolve 的重新加入走同一条路径：退出时间保留，旧消息不再可见
func (c *conversationService) Restore(ctx context.Context, selfId, chatId string) error {
	chat, err := c.repos.Chat.FindByUuid(chatId)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return errorx.New(errorx.CodeNotFound, "会话不存在")
		}
		zap.L().Error(err.Error())
		return errorx.ErrServerBusy
	}
	side := chat.SideOf(selfId)
	if side == "" {
		return errorx.ErrPermission
	}
	if chat.ActiveOf(selfId) {
		return nil
	}

	updates := map[string]interface{}{
		"active":   true,
		"notified": false,
	}
	if err := c.repos.Chat.UpdateSide(chatId, side, updates); err != nil {
		zap.L().Error(err.Error())
		return errorx.ErrServerBusy
	}
	c.publishChat(ctx, changefeed.EventUpdate, chat, []string{selfId})
	return nil
}

// ClearNotified 清除自己一侧的"新会话"提示
// 打开会话时调用；事件只发给自己，用于多端列表同步
func (c *conversationService) ClearNotified(selfId, chatId string) error {
	chat, err := c.repos.Chat.FindByUuid(chatId)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return errorx.New(errorx.CodeNotFound, "会话不存在")
		}
		zap.L().Error(err.Error())
		return errorx.ErrServerBusy
	}
	side := chat.SideOf(selfId)
	if side == "" {
		return errorx.ErrPermission
	}
	if !chat.NotifiedOf(selfId) {
		return nil
	}
	if err := c.repos.Chat.UpdateSide(chatId, side, map[string]interface{}{"notified": false}); err != nil {
		zap.L().Error(err.Error())
		return errorx.ErrServerBusy
	}
	c.publishChat(context.Background(), changefeed.EventUpdate, chat, []string{selfId})
	return nil
}

// listRow 单个会话的并发查询结果
type listRow struct {
	last   *model.DirectMessage
	unread int64
}

// List 构建会话列表视图
// 对方资料一次 IN 查询批量获取；每个会话的最后消息和未读数并发查询。
// 单个会话查询失败只降级该项，不让整个列表失败
func (c *conversationService) List(ctx context.Context, selfId string) ([]respond.ConversationListItem, error) {
	if selfId == "" {
		return nil, errorx.ErrInvalidParam
	}
	chats, err := c.repos.Chat.FindActiveByUserId(selfId)
	if err != nil {
		zap.L().Error(err.Error())
		return nil, errorx.ErrServerBusy
	}
	if len(chats) == 0 {
		return []respond.ConversationListItem{}, nil
	}

	otherIds := make([]string, 0, len(chats))
	for i := range chats {
		otherIds = append(otherIds, chats[i].OtherOf(selfId))
	}
	profiles, err := c.profiles.GetByUuids(ctx, otherIds)
	if err != nil {
		zap.L().Error(err.Error())
		return nil, errorx.ErrServerBusy
	}

	rows := make([]listRow, len(chats))
	var wg sync.WaitGroup
	for i := range chats {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chat := &chats[i]
			floor := chat.LeftAtOf(selfId)
			last, err := c.repos.Message.FindLastByChatId(chat.Uuid, floor)
			if err != nil && errorx.GetCode(err) != errorx.CodeNotFound {
				zap.L().Warn("查询最后消息失败", zap.String("chat_id", chat.Uuid), zap.Error(err))
			} else {
				rows[i].last = last
			}
			unread, err := c.repos.Message.UnreadCount(chat.Uuid, selfId)
			if err != nil {
				zap.L().Warn("统计未读失败", zap.String("chat_id", chat.Uuid), zap.Error(err))
			} else {
				rows[i].unread = unread
			}
		}(i)
	}
	wg.Wait()

	items := make([]respond.ConversationListItem, 0, len(chats))
	for i := range chats {
		chat := &chats[i]
		item := respond.ConversationListItem{
			ChatId:      chat.Uuid,
			OtherUser:   profiles[chat.OtherOf(selfId)],
			UnreadCount: rows[i].unread,
			IsNewChat:   chat.NotifiedOf(selfId),
		}
		if last := rows[i].last; last != nil {
			item.LastMessage = previewOf(last)
			item.LastMessageAt = last.CreatedAt.Format(constants.TIME_LAYOUT)
		} else if chat.LastMessageAt.Valid {
			item.LastMessageAt = chat.LastMessageAt.Time.Format(constants.TIME_LAYOUT)
		}
		items = append(items, item)
	}
	return items, nil
}

// previewOf 生成列表里的最后消息预览文本
func previewOf(msg *model.DirectMessage) string {
	if msg.Moderated {
		return "[消息已被移除]"
	}
	if msg.Content != "" {
		return msg.Content
	}
	return "[附件]"
}
