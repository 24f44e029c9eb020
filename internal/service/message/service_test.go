package message

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dao "linguachat/internal/dao/mysql"
	"linguachat/internal/dao/mysql/repository"
	"linguachat/internal/dto/request"
	"linguachat/internal/infrastructure/changefeed"
	"linguachat/internal/model"
	"linguachat/internal/service/block"
	"linguachat/pkg/errorx"
)

var testDBSeq int64

func newTestRepos(t *testing.T) *repository.Repositories {
	t.Helper()
	dsn := fmt.Sprintf("file:msg_test_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, dao.AutoMigrate(db))
	return repository.NewRepositories(db)
}

func newTestService(t *testing.T, repos *repository.Repositories, feed changefeed.Feed) *messageService {
	t.Helper()
	return NewMessageService(repos, block.NewBlockService(repos), feed, nil, nil)
}

func seedChatPair(t *testing.T, repos *repository.Repositories, uuid string) *model.DirectChat {
	t.Helper()
	chat := &model.DirectChat{
		Uuid:           uuid,
		ParticipantAId: "alice",
		ParticipantBId: "bob",
		AActive:        true,
		BActive:        true,
	}
	require.NoError(t, repos.Chat.Create(chat))
	return chat
}

func TestSendAndFetchLatest(t *testing.T) {
	repos := newTestRepos(t)
	svc := newTestService(t, repos, nil)
	chat := seedChatPair(t, repos, "Cm000000000000000001")
	ctx := context.Background()

	sent, err := svc.Send(ctx, request.SendMessageRequest{
		ChatId: chat.Uuid, SendId: "alice", Content: "你好",
	})
	require.NoError(t, err)
	require.NotZero(t, sent.Uuid)

	rsp, err := svc.Fetch(ctx, request.FetchMessagesRequest{ChatId: chat.Uuid, SelfId: "bob"})
	require.NoError(t, err)
	require.Len(t, rsp.Messages, 1)
	require.Equal(t, "你好", rsp.Messages[0].Content)
	require.False(t, rsp.HasMore)

	// 落库字段检查
	row, err := repos.Message.FindByUuid(sent.Uuid)
	require.NoError(t, err)
	require.Equal(t, "alice", row.SendId)
}

func TestSendEmptyRejected(t *testing.T) {
	repos := newTestRepos(t)
	svc := newTestService(t, repos, nil)
	chat := seedChatPair(t, repos, "Cm000000000000000002")

	_, err := svc.Send(context.Background(), request.SendMessageRequest{
		ChatId: chat.Uuid, SendId: "alice",
	})
	require.Equal(t, errorx.CodeInvalidParam, errorx.GetCode(err))
}

func TestSendByOutsiderRejected(t *testing.T) {
	repos := newTestRepos(t)
	svc := newTestService(t, repos, nil)
	chat := seedChatPair(t, repos, "Cm000000000000000003")

	_, err := svc.Send(context.Background(), request.SendMessageRequest{
		ChatId: chat.Uuid, SendId: "mallory", Content: "hi",
	})
	require.Equal(t, errorx.CodePermission, errorx.GetCode(err))
}

// TestBlockAsymmetry 拉黑的两个方向行为不同：
// 拉黑方发不出去；被拉黑方能发，消息落库但事件只回给自己
func TestBlockAsymmetry(t *testing.T) {
	repos := newTestRepos(t)
	feed := changefeed.NewChannelFeed()
	go feed.Start()
	defer feed.Close()

	aliceEvents, cancelA := feed.Subscribe("alice")
	defer cancelA()
	bobEvents, cancelB := feed.Subscribe("bob")
	defer cancelB()

	svc := newTestService(t, repos, feed)
	chat := seedChatPair(t, repos, "Cm000000000000000004")
	ctx := context.Background()

	require.NoError(t, repos.Block.Create(&model.UserBlock{BlockerId: "alice", BlockedId: "bob"}))

	// 拉黑方被拒绝
	_, err := svc.Send(ctx, request.SendMessageRequest{ChatId: chat.Uuid, SendId: "alice", Content: "hi"})
	require.Equal(t, errorx.CodePolicyReject, errorx.GetCode(err))

	// 被拉黑方静默投递
	sent, err := svc.Send(ctx, request.SendMessageRequest{ChatId: chat.Uuid, SendId: "bob", Content: "还在吗"})
	require.NoError(t, err)

	// 消息落库，发送方能拉到
	rsp, err := svc.Fetch(ctx, request.FetchMessagesRequest{ChatId: chat.Uuid, SelfId: "bob"})
	require.NoError(t, err)
	require.Len(t, rsp.Messages, 1)
	require.Equal(t, sent.Uuid, rsp.Messages[0].Uuid)

	// 发送方收到事件，拉黑方收不到
	select {
	case ev := <-bobEvents:
		require.Equal(t, changefeed.TableMessage, ev.Table)
		require.Equal(t, changefeed.EventInsert, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("发送方未收到自己的消息事件")
	}
	select {
	case ev := <-aliceEvents:
		t.Fatalf("拉黑方不应收到静默投递的事件: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

// TestSendReactivatesRecipient 对方退出过会话时，新消息把会话带回对方列表
func TestSendReactivatesRecipient(t *testing.T) {
	repos := newTestRepos(t)
	svc := newTestService(t, repos, nil)
	chat := seedChatPair(t, repos, "Cm000000000000000005")
	ctx := context.Background()

	require.NoError(t, repos.Chat.UpdateSide(chat.Uuid, "b", map[string]interface{}{"active": false}))

	_, err := svc.Send(ctx, request.SendMessageRequest{ChatId: chat.Uuid, SendId: "alice", Content: "回来"})
	require.NoError(t, err)

	row, err := repos.Chat.FindByUuid(chat.Uuid)
	require.NoError(t, err)
	require.True(t, row.BActive)
	require.True(t, row.BNotified)
}

// TestShadowSendDoesNotReactivate 静默投递不会把会话带回对方列表
func TestShadowSendDoesNotReactivate(t *testing.T) {
	repos := newTestRepos(t)
	svc := newTestService(t, repos, nil)
	chat := seedChatPair(t, repos, "Cm000000000000000006")
	ctx := context.Background()

	require.NoError(t, repos.Block.Create(&model.UserBlock{BlockerId: "alice", BlockedId: "bob"}))
	require.NoError(t, repos.Chat.UpdateSide(chat.Uuid, "a", map[string]interface{}{"active": false}))

	_, err := svc.Send(ctx, request.SendMessageRequest{ChatId: chat.Uuid, SendId: "bob", Content: "hi"})
	require.NoError(t, err)

	row, err := repos.Chat.FindByUuid(chat.Uuid)
	require.NoError(t, err)
	require.False(t, row.AActive)
}

// TestShadowSendPreRead 静默投递的消息落库即已读：
// 拉黑方的未读数不增长，拉黑方拉取时也不会向被拉黑方发出已读回执
func TestShadowSendPreRead(t *testing.T) {
	repos := newTestRepos(t)
	feed := changefeed.NewChannelFeed()
	go feed.Start()
	defer feed.Close()

	bobEvents, cancelB := feed.Subscribe("bob")
	defer cancelB()

	svc := newTestService(t, repos, feed)
	chat := seedChatPair(t, repos, "Cm000000000000000016")
	ctx := context.Background()

	require.NoError(t, repos.Block.Create(&model.UserBlock{BlockerId: "alice", BlockedId: "bob"}))

	sent, err := svc.Send(ctx, request.SendMessageRequest{ChatId: chat.Uuid, SendId: "bob", Content: "还在吗"})
	require.NoError(t, err)

	row, err := repos.Message.FindByUuid(sent.Uuid)
	require.NoError(t, err)
	require.True(t, row.IsRead, "静默投递的消息必须落库即已读")
	require.True(t, row.ReadAt.Valid)

	// 拉黑方看不到未读
	count, err := repos.Message.UnreadCount(chat.Uuid, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(0), count)

	// 丢掉发送方自己收到的 INSERT 事件
	select {
	case <-bobEvents:
	case <-time.After(time.Second):
		t.Fatal("发送方未收到自己的消息事件")
	}

	// 拉黑方拉取消息不会触发发往被拉黑方的已读回执
	_, err = svc.Fetch(ctx, request.FetchMessagesRequest{ChatId: chat.Uuid, SelfId: "alice"})
	require.NoError(t, err)
	select {
	case ev := <-bobEvents:
		t.Fatalf("被拉黑方不应收到已读回执事件: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

// failingStorage 第 N 次上传开始报错的存储桩
type failingStorage struct {
	failAfter int32
	uploads   int32
}

func (s *failingStorage) Upload(ctx context.Context, path string, r io.Reader) error {
	if atomic.AddInt32(&s.uploads, 1) > s.failAfter {
		return errors.New("storage unavailable")
	}
	_, err := io.Copy(io.Discard, r)
	return err
}

func (s *failingStorage) PublicURL(path string) string {
	return "http://test/" + path
}

// TestAttachmentFailureAbortsSend 任何一个附件上传失败，整条消息不落库
func TestAttachmentFailureAbortsSend(t *testing.T) {
	repos := newTestRepos(t)
	store := &failingStorage{failAfter: 1}
	svc := NewMessageService(repos, block.NewBlockService(repos), nil, store, nil)
	chat := seedChatPair(t, repos, "Cm000000000000000007")

	_, err := svc.Send(context.Background(), request.SendMessageRequest{
		ChatId: chat.Uuid,
		SendId: "alice",
		Attachments: []request.AttachmentUpload{
			{Name: "a.png", MimeType: "image/png", Data: strings.NewReader("aaa")},
			{Name: "b.mp4", MimeType: "video/mp4", Data: strings.NewReader("bbb")},
		},
	})
	require.Equal(t, errorx.CodeUploadError, errorx.GetCode(err))

	uuids, err := repos.Message.FindUuidsByChatId(chat.Uuid)
	require.NoError(t, err)
	require.Empty(t, uuids, "上传失败后不应有消息落库")
}

func TestSendWithAttachments(t *testing.T) {
	repos := newTestRepos(t)
	store := &failingStorage{failAfter: 100}
	svc := NewMessageService(repos, block.NewBlockService(repos), nil, store, nil)
	chat := seedChatPair(t, repos, "Cm000000000000000008")
	ctx := context.Background()

	sent, err := svc.Send(ctx, request.SendMessageRequest{
		ChatId: chat.Uuid,
		SendId: "alice",
		Attachments: []request.AttachmentUpload{
			{Name: "pic.png", MimeType: "image/png", Data: strings.NewReader("img"), Width: 800, Height: 600},
			{Name: "doc.pdf", MimeType: "application/pdf", Data: strings.NewReader("pdf")},
		},
	})
	require.NoError(t, err)
	require.Len(t, sent.Attachments, 2)
	require.Equal(t, model.AttachmentImage, sent.Attachments[0].Type)
	require.Equal(t, int32(800), sent.Attachments[0].Width)
	require.Equal(t, model.AttachmentFile, sent.Attachments[1].Type)

	// 拉取时附件一并返回
	rsp, err := svc.Fetch(ctx, request.FetchMessagesRequest{ChatId: chat.Uuid, SelfId: "bob"})
	require.NoError(t, err)
	require.Len(t, rsp.Messages, 1)
	require.Len(t, rsp.Messages[0].Attachments, 2)
}

// sendN 依次发送 n 条消息，返回升序的消息 ID
func sendN(t *testing.T, svc *messageService, chatId, sendId string, n int) []int64 {
	t.Helper()
	uuids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		sent, err := svc.Send(context.Background(), request.SendMessageRequest{
			ChatId: chatId, SendId: sendId, Content: fmt.Sprintf("msg-%d", i),
		})
		require.NoError(t, err)
		uuids = append(uuids, sent.Uuid)
	}
	return uuids
}

func TestFetchPagination(t *testing.T) {
	repos := newTestRepos(t)
	svc := newTestService(t, repos, nil)
	chat := seedChatPair(t, repos, "Cm000000000000000009")
	ctx := context.Background()

	uuids := sendN(t, svc, chat.Uuid, "alice", 7)

	// 最新页
	page1, err := svc.Fetch(ctx, request.FetchMessagesRequest{ChatId: chat.Uuid, SelfId: "alice", Limit: 3})
	require.NoError(t, err)
	require.Len(t, page1.Messages, 3)
	require.True(t, page1.HasMore)
	require.Equal(t, uuids[4], page1.Messages[0].Uuid)
	require.Equal(t, uuids[6], page1.Messages[2].Uuid)

	// 向历史翻页
	page2, err := svc.Fetch(ctx, request.FetchMessagesRequest{
		ChatId: chat.Uuid, SelfId: "alice", BeforeUuid: page1.Messages[0].Uuid, Limit: 3,
	})
	require.NoError(t, err)
	require.Len(t, page2.Messages, 3)
	require.True(t, page2.HasMore)
	require.Equal(t, uuids[1], page2.Messages[0].Uuid)

	page3, err := svc.Fetch(ctx, request.FetchMessagesRequest{
		ChatId: chat.Uuid, SelfId: "alice", BeforeUuid: page2.Messages[0].Uuid, Limit: 3,
	})
	require.NoError(t, err)
	require.Len(t, page3.Messages, 1)
	require.False(t, page3.HasMore)
	require.Equal(t, uuids[0], page3.Messages[0].Uuid)

	// 向新消息方向翻页
	after, err := svc.Fetch(ctx, request.FetchMessagesRequest{
		ChatId: chat.Uuid, SelfId: "alice", AfterUuid: uuids[4], Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, after.Messages, 2)
	require.Equal(t, uuids[5], after.Messages[0].Uuid)
}

// TestFetchAnchor 锚点定位返回目标消息及其前后上下文
func TestFetchAnchor(t *testing.T) {
	repos := newTestRepos(t)
	svc := newTestService(t, repos, nil)
	chat := seedChatPair(t, repos, "Cm000000000000000010")
	ctx := context.Background()

	uuids := sendN(t, svc, chat.Uuid, "alice", 10)
	target := uuids[7]

	rsp, err := svc.Fetch(ctx, request.FetchMessagesRequest{
		ChatId: chat.Uuid, SelfId: "alice", TargetUuid: target, Limit: 3,
	})
	require.NoError(t, err)
	// 前 5 条上下文 + 目标起 3 条，但目标之前只有 7 条、之后只有 2 条
	found := false
	for _, msg := range rsp.Messages {
		if msg.Uuid == target {
			found = true
		}
	}
	require.True(t, found, "锚点消息必须在结果中")
	// 升序
	for i := 1; i < len(rsp.Messages); i++ {
		require.Greater(t, rsp.Messages[i].Uuid, rsp.Messages[i-1].Uuid)
	}
}

func TestFetchCursorExclusivity(t *testing.T) {
	repos := newTestRepos(t)
	svc := newTestService(t, repos, nil)
	chat := seedChatPair(t, repos, "Cm000000000000000011")

	_, err := svc.Fetch(context.Background(), request.FetchMessagesRequest{
		ChatId: chat.Uuid, SelfId: "alice", BeforeUuid: 1, AfterUuid: 2,
	})
	require.Equal(t, errorx.CodeInvalidParam, errorx.GetCode(err))
}

// TestFetchMarksRead 拉取会把对方的未读消息标记为已读（async 为 nil 时同步执行）
func TestFetchMarksRead(t *testing.T) {
	repos := newTestRepos(t)
	svc := newTestService(t, repos, nil)
	chat := seedChatPair(t, repos, "Cm000000000000000012")
	ctx := context.Background()

	uuids := sendN(t, svc, chat.Uuid, "alice", 2)

	_, err := svc.Fetch(ctx, request.FetchMessagesRequest{ChatId: chat.Uuid, SelfId: "bob"})
	require.NoError(t, err)

	for _, uuid := range uuids {
		row, err := repos.Message.FindByUuid(uuid)
		require.NoError(t, err)
		require.True(t, row.IsRead)
		require.True(t, row.ReadAt.Valid)
	}

	// 发送方自己拉取不影响已读状态
	count, err := repos.Message.UnreadCount(chat.Uuid, "bob")
	require.NoError(t, err)
	require.Equal(t, int64(0), count)
}

func TestMarkRead(t *testing.T) {
	repos := newTestRepos(t)
	svc := newTestService(t, repos, nil)
	chat := seedChatPair(t, repos, "Cm000000000000000013")
	ctx := context.Background()

	sendN(t, svc, chat.Uuid, "alice", 3)

	require.NoError(t, svc.MarkRead(ctx, "bob", chat.Uuid))
	count, err := repos.Message.UnreadCount(chat.Uuid, "bob")
	require.NoError(t, err)
	require.Equal(t, int64(0), count)

	// 没有未读时幂等
	require.NoError(t, svc.MarkRead(ctx, "bob", chat.Uuid))
}

func TestModerate(t *testing.T) {
	repos := newTestRepos(t)
	svc := newTestService(t, repos, nil)
	chat := seedChatPair(t, repos, "Cm000000000000000014")
	ctx := context.Background()

	sent, err := svc.Send(ctx, request.SendMessageRequest{ChatId: chat.Uuid, SendId: "alice", Content: "违规内容"})
	require.NoError(t, err)

	require.NoError(t, svc.Moderate(ctx, sent.Uuid))

	row, err := repos.Message.FindByUuid(sent.Uuid)
	require.NoError(t, err)
	require.True(t, row.Moderated)
	require.Equal(t, moderatedPlaceholder, row.Content)
}

// TestFloorAfterRejoin 退出重加入后只能看到退出之后的消息
func TestFloorAfterRejoin(t *testing.T) {
	repos := newTestRepos(t)
	svc := newTestService(t, repos, nil)
	chat := seedChatPair(t, repos, "Cm000000000000000015")
	ctx := context.Background()

	sendN(t, svc, chat.Uuid, "alice", 2)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, repos.Chat.UpdateSide(chat.Uuid, "b", map[string]interface{}{
		"active":  false,
		"left_at": time.Now(),
	}))
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, repos.Chat.UpdateSide(chat.Uuid, "b", map[string]interface{}{"active": true}))
	sent, err := svc.Send(ctx, request.SendMessageRequest{ChatId: chat.Uuid, SendId: "alice", Content: "新消息"})
	require.NoError(t, err)

	rsp, err := svc.Fetch(ctx, request.FetchMessagesRequest{ChatId: chat.Uuid, SelfId: "bob"})
	require.NoError(t, err)
	require.Len(t, rsp.Messages, 1)
	require.Equal(t, sent.Uuid, rsp.Messages[0].Uuid)

	// 对方不受下限影响
	rsp, err = svc.Fetch(ctx, request.FetchMessagesRequest{ChatId: chat.Uuid, SelfId: "alice"})
	require.NoError(t, err)
	require.Len(t, rsp.Messages, 3)
}
