// Package message 实现消息收发的业务逻辑
// 发送链路的顺序是固定的：参与者校验 -> 拉黑闸门 -> 对端软成员恢复 ->
// 附件上传 -> 事务落库 -> 发布变更事件，任何一步失败都不会走到下一步
package message

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"linguachat/internal/dao/mysql/repository"
	myredis "linguachat/internal/dao/redis"
	"linguachat/internal/dto/request"
	"linguachat/internal/dto/respond"
	"linguachat/internal/infrastructure/blob"
	"linguachat/internal/infrastructure/changefeed"
	"linguachat/internal/infrastructure/validate"
	"linguachat/internal/model"
	"linguachat/pkg/constants"
	"linguachat/pkg/errorx"
	"linguachat/pkg/util/snowflake"
)

// moderatedPlaceholder 审核删除后的占位内容
const moderatedPlaceholder = "[消息已被移除]"

// blockChecker 发送前的拉黑检查能力（由 block.Service 提供）
type blockChecker interface {
	Check(selfId, otherId string) (*respond.BlockStatus, error)
}

// messageService 消息业务实现
type messageService struct {
	repos  *repository.Repositories
	blocks blockChecker
	feed   changefeed.Feed            // 可为 nil
	store  blob.Storage               // 可为 nil（无附件场景）
	async  myredis.AsyncCacheService  // 可为 nil，已读回执降级为同步落库
}

// NewMessageService 构造函数
func NewMessageService(repos *repository.Repositories, blocks blockChecker, feed changefeed.Feed, store blob.Storage, async myredis.AsyncCacheService) *messageService {
	return &messageService{
		repos:  repos,
		blocks: blocks,
		feed:   feed,
		store:  store,
		async:  async,
	}
}

// toMessageRespond 模型转视图
func toMessageRespond(msg *model.DirectMessage, attachments []model.Attachment) respond.MessageRespond {
	rsp := respond.MessageRespond{
		Uuid:      msg.Uuid,
		ChatId:    msg.ChatId,
		SendId:    msg.SendId,
		Content:   msg.Content,
		IsRead:    msg.IsRead,
		IsSystem:  msg.IsSystem,
		Moderated: msg.Moderated,
		CreatedAt: msg.CreatedAt.Format(constants.TIME_LAYOUT),
	}
	for i := range attachments {
		att := &attachments[i]
		ar := respond.AttachmentRespond{
			Uuid: att.Uuid,
			Type: att.Type,
			Url:  att.Url,
			Name: att.Name,
		}
		if att.Width.Valid {
			ar.Width = att.Width.Int32
		}
		if att.Height.Valid {
			ar.Height = att.Height.Int32
		}
		rsp.Attachments = append(rsp.Attachments, ar)
	}
	return rsp
}

// publishMessage 发布消息表变更事件
func (m *messageService) publishMessage(ctx context.Context, evType string, payload respond.MessageRespond, userIds []string) {
	if m.feed == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		zap.L().Error("序列化消息事件失败", zap.Error(err))
		return
	}
	ev := changefeed.Event{
		Table:   changefeed.TableMessage,
		Type:    evType,
		UserIds: userIds,
		New:     data,
	}
	if err := m.feed.Publish(ctx, ev); err != nil {
		zap.L().Warn("发布消息事件失败", zap.Int64("uuid", payload.Uuid), zap.Error(err))
	}
}

// submit 异步执行，没有异步通道时同步降级
func (m *messageService) submit(action func()) {
	if m.async != nil {
		m.async.SubmitTask(action)
		return
	}
	action()
}

// Send 发送消息
// 拉黑闸门的两个方向行为不同：
//   - 我拉黑了对方：直接拒绝（两个方向同时生效时本规则优先）
//   - 对方拉黑了我：静默投递，消息落库且发送方可见，但不通知对方，
//     也不恢复对方已退出的会话，对方察觉不到我还在发
func (m *messageService) Send(ctx context.Context, req request.SendMessageRequest) (*respond.MessageRespond, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if req.Content == "" && len(req.Attachments) == 0 {
		return nil, errorx.New(errorx.CodeInvalidParam, "消息内容和附件不能同时为空")
	}

	chat, err := m.repos.Chat.FindByUuid(req.ChatId)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return nil, errorx.New(errorx.CodeNotFound, "会话不存在")
		}
		zap.L().Error(err.Error())
		return nil, errorx.ErrServerBusy
	}
	if chat.SideOf(req.SendId) == "" {
		return nil, errorx.ErrPermission
	}
	otherId := chat.OtherOf(req.SendId)

	status, err := m.blocks.Check(req.SendId, otherId)
	if err != nil {
		return nil, err
	}
	if status.BlockedBySelf {
		return nil, errorx.ErrBlocked
	}
	shadow := status.BlockedByOther

	// 对方退出过会话的话，正常发送会把会话带回对方列表并打上新会话提示
	if !shadow && !chat.ActiveOf(otherId) {
		updates := map[string]interface{}{
			"active":   true,
			"notified": true,
		}
		if err := m.repos.Chat.UpdateSide(chat.Uuid, chat.SideOf(otherId), updates); err != nil {
			zap.L().Error(err.Error())
			return nil, errorx.ErrServerBusy
		}
	}

	msgUuid := snowflake.GenerateID()
	attachments, err := uploadAttachments(ctx, m.store, chat.Uuid, msgUuid, req.Attachments)
	if err != nil {
		zap.L().Error("附件上传失败，消息中止", zap.String("chat_id", chat.Uuid), zap.Error(err))
		return nil, err
	}

	msg := &model.DirectMessage{
		Uuid:    msgUuid,
		ChatId:  chat.Uuid,
		SendId:  req.SendId,
		Content: req.Content,
	}
	// 静默投递的消息落库即已读：对方的未读数不增长，
	// 之后拉取也不会触发发往我这边的已读回执
	if shadow {
		msg.IsRead = true
		msg.ReadAt = sql.NullTime{Time: time.Now(), Valid: true}
	}
	err = m.repos.Transaction(func(tx *repository.Repositories) error {
		if err := tx.Message.Create(msg); err != nil {
			return err
		}
		if len(attachments) > 0 {
			if err := tx.Attachment.CreateBatch(attachments); err != nil {
				return err
			}
		}
		return tx.Chat.UpdateLastMessageAt(chat.Uuid, msg.CreatedAt)
	})
	if err != nil {
		zap.L().Error("消息落库失败", zap.String("chat_id", chat.Uuid), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}

	rsp := toMessageRespond(msg, attachments)

	targets := []string{req.SendId, otherId}
	if shadow {
		targets = []string{req.SendId}
	}
	m.publishMessage(ctx, changefeed.EventInsert, rsp, targets)

	return &rsp, nil
}

// fetchPage 按拉取模式取一页消息（返回值恒为 ID 升序）
func (m *messageService) fetchPage(req request.FetchMessagesRequest, floor sql.NullTime, limit int) ([]model.DirectMessage, bool, error) {
	switch {
	case req.TargetUuid > 0:
		// 锚点定位：目标消息前补少量上下文，目标起向后取一页
		before, err := m.repos.Message.FindBefore(req.ChatId, req.TargetUuid, floor, constants.ANCHOR_BEFORE_SIZE)
		if err != nil {
			return nil, false, err
		}
		from, err := m.repos.Message.FindFrom(req.ChatId, req.TargetUuid, floor, limit+1)
		if err != nil {
			return nil, false, err
		}
		hasMore := len(from) > limit
		if hasMore {
			from = from[:limit]
		}
		reverse(before)
		return append(before, from...), hasMore, nil

	case req.AfterUuid > 0:
		messages, err := m.repos.Message.FindAfter(req.ChatId, req.AfterUuid, floor, limit+1)
		if err != nil {
			return nil, false, err
		}
		hasMore := len(messages) > limit
		if hasMore {
			messages = messages[:limit]
		}
		return messages, hasMore, nil

	default:
		// 最新页或向历史翻页
		messages, err := m.repos.Message.FindBefore(req.ChatId, req.BeforeUuid, floor, limit+1)
		if err != nil {
			return nil, false, err
		}
		hasMore := len(messages) > limit
		if hasMore {
			messages = messages[:limit]
		}
		reverse(messages)
		return messages, hasMore, nil
	}
}

// reverse 原地反转（倒序查询结果转为升序展示顺序）
func reverse(messages []model.DirectMessage) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}

// Fetch 拉取消息
// 游标参数三选一（都不带表示最新页）；结果恒为时间升序。
// 拉取到的对方未读消息会异步标记已读并向对方发出已读回执事件
func (m *messageService) Fetch(ctx context.Context, req request.FetchMessagesRequest) (*respond.FetchMessagesRespond, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	cursors := 0
	for _, c := range []int64{req.BeforeUuid, req.AfterUuid, req.TargetUuid} {
		if c > 0 {
			cursors++
		}
	}
	if cursors > 1 {
		return nil, errorx.New(errorx.CodeInvalidParam, "before/after/target 游标只能指定一个")
	}

	chat, err := m.repos.Chat.FindByUuid(req.ChatId)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return nil, errorx.New(errorx.CodeNotFound, "会话不存在")
		}
		zap.L().Error(err.Error())
		return nil, errorx.ErrServerBusy
	}
	if chat.SideOf(req.SelfId) == "" {
		return nil, errorx.ErrPermission
	}

	limit := req.Limit
	if limit <= 0 || limit > constants.MESSAGE_PAGE_SIZE {
		limit = constants.MESSAGE_PAGE_SIZE
	}

	messages, hasMore, err := m.fetchPage(req, chat.LeftAtOf(req.SelfId), limit)
	if err != nil {
		zap.L().Error(err.Error())
		return nil, errorx.ErrServerBusy
	}

	// 附件批量加载，按消息分组
	msgUuids := make([]int64, 0, len(messages))
	for i := range messages {
		msgUuids = append(msgUuids, messages[i].Uuid)
	}
	attachmentsByMsg := make(map[int64][]model.Attachment)
	if len(msgUuids) > 0 {
		attachments, err := m.repos.Attachment.FindByMessageUuids(msgUuids)
		if err != nil {
			zap.L().Error(err.Error())
			return nil, errorx.ErrServerBusy
		}
		for i := range attachments {
			att := attachments[i]
			attachmentsByMsg[att.MessageUuid] = append(attachmentsByMsg[att.MessageUuid], att)
		}
	}

	rsp := &respond.FetchMessagesRespond{
		Messages: make([]respond.MessageRespond, 0, len(messages)),
		HasMore:  hasMore,
	}
	var unread []model.DirectMessage
	for i := range messages {
		msg := &messages[i]
		rsp.Messages = append(rsp.Messages, toMessageRespond(msg, attachmentsByMsg[msg.Uuid]))
		if msg.SendId != req.SelfId && !msg.IsRead {
			unread = append(unread, *msg)
		}
	}

	// 已读落库和回执不阻塞拉取
	if len(unread) > 0 {
		otherId := chat.OtherOf(req.SelfId)
		m.submit(func() {
			m.markReadAndNotify(context.Background(), unread, otherId)
		})
	}

	return rsp, nil
}

// markReadAndNotify 批量标记已读并向发送方发布逐条已读回执事件
func (m *messageService) markReadAndNotify(ctx context.Context, unread []model.DirectMessage, senderId string) {
	uuids := make([]int64, 0, len(unread))
	for i := range unread {
		uuids = append(uuids, unread[i].Uuid)
	}
	if err := m.repos.Message.MarkReadByUuids(uuids); err != nil {
		zap.L().Error("标记已读失败", zap.Error(err))
		return
	}
	for i := range unread {
		msg := unread[i]
		msg.IsRead = true
		m.publishMessage(ctx, changefeed.EventUpdate, toMessageRespond(&msg, nil), []string{senderId})
	}
}

// MarkRead 将会话内所有对方发来的未读消息标记为已读
func (m *messageService) MarkRead(ctx context.Context, selfId, chatId string) error {
	chat, err := m.repos.Chat.FindByUuid(chatId)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return errorx.New(errorx.CodeNotFound, "会话不存在")
		}
		zap.L().Error(err.Error())
		return errorx.ErrServerBusy
	}
	if chat.SideOf(selfId) == "" {
		return errorx.ErrPermission
	}

	unread, err := m.repos.Message.FindUnreadByChat(chatId, selfId)
	if err != nil {
		zap.L().Error(err.Error())
		return errorx.ErrServerBusy
	}
	if len(unread) == 0 {
		return nil
	}
	m.markReadAndNotify(ctx, unread, chat.OtherOf(selfId))
	return nil
}

// Moderate 审核删除消息
// 不删行：内容替换为占位文案，moderated 标记留作审计痕迹
func (m *messageService) Moderate(ctx context.Context, messageUuid int64) error {
	msg, err := m.repos.Message.FindByUuid(messageUuid)
	if err != nil {
		if errorx.GetCode(err) == errorx.CodeNotFound {
			return errorx.New(errorx.CodeNotFound, "消息不存在")
		}
		zap.L().Error(err.Error())
		return errorx.ErrServerBusy
	}
	if err := m.repos.Message.ModerateByUuid(messageUuid, moderatedPlaceholder); err != nil {
		zap.L().Error(err.Error())
		return errorx.ErrServerBusy
	}

	msg.Content = moderatedPlaceholder
	msg.Moderated = true
	targets := []string{msg.SendId}
	if chat, err := m.repos.Chat.FindByUuid(msg.ChatId); err == nil {
		targets = []string{chat.ParticipantAId, chat.ParticipantBId}
	}
	m.publishMessage(ctx, changefeed.EventUpdate, toMessageRespond(msg, nil), targets)
	return nil
}
