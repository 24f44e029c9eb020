// Package chatsync 实现面向单个用户的消息同步上下文
// 维护会话列表和当前打开会话的内存视图，订阅变更事件流做增量修补，
// 列表刷新经过去抖合并，事件乱序和重复靠消息 ID 去重解决
package chatsync

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"go.uber.org/zap"

	"linguachat/internal/config"
	"linguachat/internal/dto/request"
	"linguachat/internal/dto/respond"
	"linguachat/internal/infrastructure/changefeed"
	"linguachat/internal/service"
	"linguachat/pkg/constants"
	"linguachat/pkg/errorx"
)

// 上下文状态机：Idle -> Loading -> Ready
// 首次加载失败回到 Idle 可重试；Ready 之后刷新失败保留旧数据
const (
	StateIdle    = "idle"
	StateLoading = "loading"
	StateReady   = "ready"
)

// Context 单个用户的同步上下文
// 所有导出方法并发安全；视图变更后通过 onChange 回调通知上层
type Context struct {
	svc    *service.Services
	feed   changefeed.Feed
	selfId string

	mu            sync.Mutex
	state         string
	conversations []respond.ConversationListItem
	openChatId    string
	messages      []respond.MessageRespond
	seen          map[int64]struct{}
	hasMore       bool
	lastErr       error

	// reloading / dirty 刷新护栏：刷新进行中再来触发只置脏标记，
	// 结束后补一轮，保证不会并发刷新也不会漏掉最后一次变更
	reloading bool
	dirty     bool
	reload    *debouncer

	search      *debouncer
	searchTerm  string
	searchReply func([]respond.ChatUserRespond, error)

	pageSize int

	cancel   func()
	done     chan struct{}
	onChange func()
}

// New 创建同步上下文并启动事件消费
// onChange 可为 nil；不为 nil 时在每次视图变更后被调用（不持锁）
func New(svc *service.Services, feed changefeed.Feed, selfId string, onChange func()) *Context {
	c := &Context{
		svc:      svc,
		feed:     feed,
		selfId:   selfId,
		state:    StateIdle,
		seen:     make(map[int64]struct{}),
		done:     make(chan struct{}),
		onChange: onChange,
	}
	syncCfg := config.GetConfig().SyncConfig
	reloadWindow := syncCfg.DebounceWindow
	if reloadWindow <= 0 {
		reloadWindow = constants.DEBOUNCE_WINDOW
	}
	searchWindow := syncCfg.SearchDebounce
	if searchWindow <= 0 {
		searchWindow = constants.SEARCH_DEBOUNCE
	}
	c.pageSize = syncCfg.PageSize
	c.reload = newDebouncer(reloadWindow, c.doReload)
	c.search = newDebouncer(searchWindow, c.doSearch)

	if feed != nil {
		events, cancel := feed.Subscribe(selfId)
		c.cancel = cancel
		go c.eventLoop(events)
	}
	return c
}

// Destroy 销毁上下文：退订事件流并停止所有去抖器
// 销毁后上下文不再可用
func (c *Context) Destroy() {
	if c.cancel != nil {
		c.cancel()
	}
	c.reload.Stop()
	c.search.Stop()
	close(c.done)
}

// notify 通知上层视图已变更
func (c *Context) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}

// ==================== 会话列表 ====================

// LoadConversations 加载会话列表
// 首次调用同步加载；之后的调用走去抖刷新，窗口内的重复调用被合并
func (c *Context) LoadConversations(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		c.reload.Trigger()
		return nil
	}
	c.state = StateLoading
	// 首次加载也占住刷新护栏，期间到来的去抖刷新只置脏标记
	c.reloading = true
	c.mu.Unlock()

	items, err := c.svc.Conversation.List(ctx, c.selfId)

	c.mu.Lock()
	c.reloading = false
	rerun := c.dirty
	c.dirty = false
	if err != nil {
		c.state = StateIdle // 可重试
		c.lastErr = err
		c.mu.Unlock()
		return err
	}
	c.state = StateReady
	c.conversations = items
	c.mu.Unlock()

	c.notify()
	if rerun {
		c.doReload()
	}
	return nil
}

// doReload 去抖窗口结束后的实际刷新
func (c *Context) doReload() {
	c.mu.Lock()
	if c.state == StateIdle {
		// 尚未首次加载，刷新没有意义
		c.mu.Unlock()
		return
	}
	if c.reloading {
		c.dirty = true
		c.mu.Unlock()
		return
	}
	c.reloading = true
	c.mu.Unlock()

	items, err := c.svc.Conversation.List(context.Background(), c.selfId)

	c.mu.Lock()
	c.reloading = false
	if err != nil {
		// 刷新失败保留旧列表
		c.lastErr = err
		zap.L().Warn("刷新会话列表失败", zap.String("user_id", c.selfId), zap.Error(err))
	} else {
		c.conversations = items
	}
	rerun := c.dirty
	c.dirty = false
	c.mu.Unlock()

	c.notify()
	if rerun {
		c.doReload()
	}
}

// ==================== 打开的会话 ====================

// StartConversation 与指定用户开聊：获取或创建会话并打开它
func (c *Context) StartConversation(ctx context.Context, otherId string) (string, error) {
	chat, err := c.svc.Conversation.Resolve(ctx, c.selfId, otherId)
	if err != nil {
		c.setErr(err)
		return "", err
	}
	if err := c.OpenConversation(ctx, chat.ChatId); err != nil {
		return "", err
	}
	return chat.ChatId, nil
}

// OpenConversation 打开会话：加载最新一页消息并清除未读和新会话提示
func (c *Context) OpenConversation(ctx context.Context, chatId string) error {
	rsp, err := c.svc.Message.Fetch(ctx, request.FetchMessagesRequest{
		ChatId: chatId,
		SelfId: c.selfId,
		Limit:  c.pageSize,
	})
	if err != nil {
		c.setErr(err)
		return err
	}

	if err := c.svc.Conversation.ClearNotified(c.selfId, chatId); err != nil {
		// 提示清除失败不影响打开会话
		zap.L().Warn("清除新会话提示失败", zap.String("chat_id", chatId), zap.Error(err))
	}

	c.mu.Lock()
	c.openChatId = chatId
	c.messages = rsp.Messages
	c.hasMore = rsp.HasMore
	c.seen = make(map[int64]struct{}, len(rsp.Messages))
	for i := range rsp.Messages {
		c.seen[rsp.Messages[i].Uuid] = struct{}{}
	}
	// 列表项定点修补，不等整体刷新
	for i := range c.conversations {
		if c.conversations[i].ChatId == chatId {
			c.conversations[i].UnreadCount = 0
			c.conversations[i].IsNewChat = false
			break
		}
	}
	c.mu.Unlock()

	c.notify()
	return nil
}

// CloseConversation 关闭当前打开的会话
func (c *Context) CloseConversation() {
	c.mu.Lock()
	c.openChatId = ""
	c.messages = nil
	c.seen = make(map[int64]struct{})
	c.hasMore = false
	c.mu.Unlock()
	c.notify()
}

// LoadOlder 向历史方向再翻一页，结果插到当前消息之前
func (c *Context) LoadOlder(ctx context.Context) error {
	c.mu.Lock()
	chatId := c.openChatId
	if chatId == "" || len(c.messages) == 0 {
		c.mu.Unlock()
		return nil
	}
	oldest := c.messages[0].Uuid
	c.mu.Unlock()

	rsp, err := c.svc.Message.Fetch(ctx, request.FetchMessagesRequest{
		ChatId:     chatId,
		SelfId:     c.selfId,
		BeforeUuid: oldest,
		Limit:      c.pageSize,
	})
	if err != nil {
		c.setErr(err)
		return err
	}

	c.mu.Lock()
	if c.openChatId != chatId {
		// 翻页期间切换了会话，结果作废
		c.mu.Unlock()
		return nil
	}
	fresh := make([]respond.MessageRespond, 0, len(rsp.Messages))
	for i := range rsp.Messages {
		if _, ok := c.seen[rsp.Messages[i].Uuid]; !ok {
			fresh = append(fresh, rsp.Messages[i])
			c.seen[rsp.Messages[i].Uuid] = struct{}{}
		}
	}
	c.messages = append(fresh, c.messages...)
	c.hasMore = rsp.HasMore
	c.mu.Unlock()

	c.notify()
	return nil
}

// JumpToMessage 锚点定位：打开会话并定位到指定消息的上下文
func (c *Context) JumpToMessage(ctx context.Context, chatId string, targetUuid int64) error {
	rsp, err := c.svc.Message.Fetch(ctx, request.FetchMessagesRequest{
		ChatId:     chatId,
		SelfId:     c.selfId,
		TargetUuid: targetUuid,
	})
	if err != nil {
		c.setErr(err)
		return err
	}

	c.mu.Lock()
	c.openChatId = chatId
	c.messages = rsp.Messages
	c.hasMore = rsp.HasMore
	c.seen = make(map[int64]struct{}, len(rsp.Messages))
	for i := range rsp.Messages {
		c.seen[rsp.Messages[i].Uuid] = struct{}{}
	}
	c.mu.Unlock()

	c.notify()
	return nil
}

// Send 在当前打开的会话里发送消息
// 成功后立即本地上屏；事件回流时靠消息 ID 去重，不会出现重复气泡
func (c *Context) Send(ctx context.Context, content string, attachments []request.AttachmentUpload) (*respond.MessageRespond, error) {
	c.mu.Lock()
	chatId := c.openChatId
	c.mu.Unlock()
	if chatId == "" {
		return nil, errorx.New(errorx.CodeInvalidParam, "没有打开的会话")
	}

	rsp, err := c.svc.Message.Send(ctx, request.SendMessageRequest{
		ChatId:      chatId,
		SendId:      c.selfId,
		Content:     content,
		Attachments: attachments,
	})
	if err != nil {
		c.setErr(err)
		return nil, err
	}

	c.mu.Lock()
	if c.openChatId == chatId {
		c.appendLocked(*rsp)
	}
	c.patchListLocked(*rsp)
	c.mu.Unlock()

	c.notify()
	return rsp, nil
}

// Leave 退出会话；退出的正是打开中的会话时顺带关闭它
func (c *Context) Leave(ctx context.Context, chatId string) error {
	if err := c.svc.Conversation.Leave(ctx, c.selfId, chatId); err != nil {
		c.setErr(err)
		return err
	}

	c.mu.Lock()
	if c.openChatId == chatId {
		c.openChatId = ""
		c.messages = nil
		c.seen = make(map[int64]struct{})
		c.hasMore = false
	}
	// 事件流也会触发刷新，这里先把列表项摘掉让界面即时响应
	for i := range c.conversations {
		if c.conversations[i].ChatId == chatId {
			c.conversations = append(c.conversations[:i], c.conversations[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	c.notify()
	c.reload.Trigger()
	return nil
}

// Restore 重新加入已退出的会话，列表随后刷新
func (c *Context) Restore(ctx context.Context, chatId string) error {
	if err := c.svc.Conversation.Restore(ctx, c.selfId, chatId); err != nil {
		c.setErr(err)
		return err
	}
	c.reload.Trigger()
	return nil
}

// ==================== 用户搜索 ====================

// SearchParticipants 搜索可以开聊的用户
// 连续输入走去抖，只有停顿超过窗口才真正发起查询，结果通过 deliver 回调返回
func (c *Context) SearchParticipants(term string, deliver func([]respond.ChatUserRespond, error)) {
	c.mu.Lock()
	c.searchTerm = term
	c.searchReply = deliver
	c.mu.Unlock()
	c.search.Trigger()
}

// doSearch 去抖窗口结束后的实际搜索，使用窗口内最后一次输入
func (c *Context) doSearch() {
	c.mu.Lock()
	term := c.searchTerm
	deliver := c.searchReply
	c.mu.Unlock()
	if deliver == nil {
		return
	}
	users, err := c.svc.User.Search(c.selfId, term)
	deliver(users, err)
}

// ==================== 事件消费 ====================

// eventLoop 消费事件流直到订阅取消
func (c *Context) eventLoop(events <-chan changefeed.Event) {
	for ev := range events {
		c.handleEvent(ev)
	}
}

// handleEvent 单条事件的增量修补
func (c *Context) handleEvent(ev changefeed.Event) {
	switch ev.Table {
	case changefeed.TableChat:
		c.handleChatEvent(ev)
	case changefeed.TableMessage:
		c.handleMessageEvent(ev)
	}
}

// handleChatEvent 会话表事件：列表走去抖刷新
// 会话被删除且正打开着时立即关闭，避免继续往已删除的会话里发消息
func (c *Context) handleChatEvent(ev changefeed.Event) {
	if ev.Type == changefeed.EventDelete {
		var chat respond.ChatRespond
		if err := json.Unmarshal(ev.New, &chat); err == nil {
			c.mu.Lock()
			open := c.openChatId == chat.ChatId
			c.mu.Unlock()
			if open {
				c.CloseConversation()
			}
		}
	}
	c.reload.Trigger()
}

// handleMessageEvent 消息表事件
// 判断事件是否属于"当前打开的会话"时读取的是处理时刻的最新值，
// 打开另一个会话后，旧会话迟到的事件不会串进新会话
func (c *Context) handleMessageEvent(ev changefeed.Event) {
	var msg respond.MessageRespond
	if err := json.Unmarshal(ev.New, &msg); err != nil {
		zap.L().Warn("解析消息事件失败", zap.Error(err))
		return
	}

	switch ev.Type {
	case changefeed.EventInsert:
		c.mu.Lock()
		open := c.openChatId == msg.ChatId
		appended := false
		if open {
			appended = c.appendLocked(msg)
		}
		c.mu.Unlock()

		if appended {
			c.notify()
			// 对方的消息到达在打开着的会话里，立刻回已读回执
			if msg.SendId != c.selfId {
				go func() {
					if err := c.svc.Message.MarkRead(context.Background(), c.selfId, msg.ChatId); err != nil {
						zap.L().Warn("实时已读回执失败", zap.String("chat_id", msg.ChatId), zap.Error(err))
					}
				}()
			}
		}
		// 未打开的会话只影响列表（未读数、预览）
		c.reload.Trigger()

	case changefeed.EventUpdate:
		c.mu.Lock()
		patched := false
		if c.openChatId == msg.ChatId {
			for i := range c.messages {
				if c.messages[i].Uuid == msg.Uuid {
					c.messages[i].IsRead = msg.IsRead
					c.messages[i].Content = msg.Content
					c.messages[i].Moderated = msg.Moderated
					patched = true
					break
				}
			}
		}
		c.mu.Unlock()
		if patched {
			c.notify()
		}
		if msg.Moderated {
			// 审核删除可能改变列表预览
			c.reload.Trigger()
		}
	}
}

// appendLocked 去重追加消息并保持升序，须持锁调用
// 返回是否真的追加了（重复事件返回 false）
func (c *Context) appendLocked(msg respond.MessageRespond) bool {
	if _, ok := c.seen[msg.Uuid]; ok {
		return false
	}
	c.seen[msg.Uuid] = struct{}{}
	c.messages = append(c.messages, msg)
	// 事件可能乱序到达，必要时归位
	if n := len(c.messages); n > 1 && c.messages[n-2].Uuid > msg.Uuid {
		sort.Slice(c.messages, func(i, j int) bool {
			return c.messages[i].Uuid < c.messages[j].Uuid
		})
	}
	return true
}

// patchListLocked 发送成功后的列表定点修补，须持锁调用
// 让自己发的消息立刻出现在列表预览里，整体刷新随后由事件流触发
func (c *Context) patchListLocked(msg respond.MessageRespond) {
	for i := range c.conversations {
		if c.conversations[i].ChatId != msg.ChatId {
			continue
		}
		item := c.conversations[i]
		if msg.Content != "" {
			item.LastMessage = msg.Content
		} else {
			item.LastMessage = "[附件]"
		}
		item.LastMessageAt = msg.CreatedAt
		// 最近聊过的会话顶到最前
		c.conversations = append(c.conversations[:i], c.conversations[i+1:]...)
		c.conversations = append([]respond.ConversationListItem{item}, c.conversations...)
		return
	}
}

// ==================== 视图访问 ====================

// setErr 记录最近一次错误
func (c *Context) setErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.notify()
}

// State 当前状态：idle / loading / ready
func (c *Context) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err 最近一次错误，未发生过错误或已清除时为 nil
func (c *Context) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ClearError 清除错误状态
func (c *Context) ClearError() {
	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()
}

// OpenChatId 当前打开的会话 ID，没有打开的会话时为空串
func (c *Context) OpenChatId() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openChatId
}

// Conversations 会话列表快照
func (c *Context) Conversations() []respond.ConversationListItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]respond.ConversationListItem, len(c.conversations))
	copy(out, c.conversations)
	return out
}

// Messages 打开会话的消息快照（升序）
func (c *Context) Messages() []respond.MessageRespond {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]respond.MessageRespond, len(c.messages))
	copy(out, c.messages)
	return out
}

// HasMore 打开会话是否还有更早的历史可翻
func (c *Context) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}
