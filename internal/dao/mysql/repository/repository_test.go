package repository_test

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dao "linguachat/internal/dao/mysql"
	"linguachat/internal/dao/mysql/repository"
	"linguachat/internal/model"
)

var testDBSeq int64

// newTestRepos 基于 sqlite 内存库构建 Repository，走和生产一样的迁移
func newTestRepos(t *testing.T) *repository.Repositories {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_test_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, dao.AutoMigrate(db))
	return repository.NewRepositories(db)
}

func seedChat(t *testing.T, repos *repository.Repositories, uuid, aId, bId string) *model.DirectChat {
	t.Helper()
	chat := &model.DirectChat{
		Uuid:           uuid,
		ParticipantAId: aId,
		ParticipantBId: bId,
		AActive:        true,
		BActive:        true,
	}
	require.NoError(t, repos.Chat.Create(chat))
	return chat
}

func seedMessage(t *testing.T, repos *repository.Repositories, uuid int64, chatId, sendId, content string) {
	t.Helper()
	require.NoError(t, repos.Message.Create(&model.DirectMessage{
		Uuid:    uuid,
		ChatId:  chatId,
		SendId:  sendId,
		Content: content,
	}))
}

func TestChatPairUnique(t *testing.T) {
	repos := newTestRepos(t)
	seedChat(t, repos, "C1000000000000000001", "alice", "bob")

	err := repos.Chat.Create(&model.DirectChat{
		Uuid:           "C1000000000000000002",
		ParticipantAId: "alice",
		ParticipantBId: "bob",
		AActive:        true,
		BActive:        true,
	})
	require.Error(t, err)
	require.True(t, repository.IsDuplicateKey(err))

	// 不同用户对不受影响
	require.NoError(t, repos.Chat.Create(&model.DirectChat{
		Uuid:           "C1000000000000000003",
		ParticipantAId: "alice",
		ParticipantBId: "carol",
		AActive:        true,
		BActive:        true,
	}))
}

func TestChatUpdateSide(t *testing.T) {
	repos := newTestRepos(t)
	chat := seedChat(t, repos, "C2000000000000000001", "alice", "bob")

	now := time.Now()
	require.NoError(t, repos.Chat.UpdateSide(chat.Uuid, "b", map[string]interface{}{
		"active":  false,
		"left_at": sql.NullTime{Time: now, Valid: true},
	}))

	got, err := repos.Chat.FindByUuid(chat.Uuid)
	require.NoError(t, err)
	require.True(t, got.AActive)
	require.False(t, got.BActive)
	require.True(t, got.BLeftAt.Valid)
	require.False(t, got.ALeftAt.Valid)
}

func TestFindActiveByUserId(t *testing.T) {
	repos := newTestRepos(t)
	seedChat(t, repos, "C3000000000000000001", "alice", "bob")
	chat2 := seedChat(t, repos, "C3000000000000000002", "alice", "carol")

	// alice 退出第二个会话后列表里只剩一个
	require.NoError(t, repos.Chat.UpdateSide(chat2.Uuid, "a", map[string]interface{}{"active": false}))

	chats, err := repos.Chat.FindActiveByUserId("alice")
	require.NoError(t, err)
	require.Len(t, chats, 1)
	require.Equal(t, "C3000000000000000001", chats[0].Uuid)

	// carol 那一侧仍然是 active
	chats, err = repos.Chat.FindActiveByUserId("carol")
	require.NoError(t, err)
	require.Len(t, chats, 1)
}

// TestPaginationExhaustive 向历史方向翻页应当不重不漏地覆盖全部消息
func TestPaginationExhaustive(t *testing.T) {
	repos := newTestRepos(t)
	chat := seedChat(t, repos, "C4000000000000000001", "alice", "bob")

	total := 10
	for i := 1; i <= total; i++ {
		seedMessage(t, repos, int64(i), chat.Uuid, "alice", fmt.Sprintf("msg-%d", i))
	}

	noFloor := sql.NullTime{}
	pageSize := 3
	var cursor int64
	collected := make(map[int64]bool)
	pages := 0
	for {
		page, err := repos.Message.FindBefore(chat.Uuid, cursor, noFloor, pageSize)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, msg := range page {
			require.False(t, collected[msg.Uuid], "消息 %d 在多页中重复出现", msg.Uuid)
			collected[msg.Uuid] = true
		}
		// 页内倒序
		for i := 1; i < len(page); i++ {
			require.Greater(t, page[i-1].Uuid, page[i].Uuid)
		}
		cursor = page[len(page)-1].Uuid
		pages++
		require.LessOrEqual(t, pages, total, "翻页未收敛")
	}
	require.Len(t, collected, total)
}

func TestFindAfterAndFrom(t *testing.T) {
	repos := newTestRepos(t)
	chat := seedChat(t, repos, "C5000000000000000001", "alice", "bob")
	for i := 1; i <= 6; i++ {
		seedMessage(t, repos, int64(i*10), chat.Uuid, "alice", fmt.Sprintf("m%d", i))
	}
	noFloor := sql.NullTime{}

	after, err := repos.Message.FindAfter(chat.Uuid, 30, noFloor, 10)
	require.NoError(t, err)
	require.Len(t, after, 3) // 40, 50, 60
	require.Equal(t, int64(40), after[0].Uuid)

	from, err := repos.Message.FindFrom(chat.Uuid, 30, noFloor, 10)
	require.NoError(t, err)
	require.Len(t, from, 4) // 30 起（含）
	require.Equal(t, int64(30), from[0].Uuid)
}

// TestMessageFloor 退出时间之前的消息不可见
func TestMessageFloor(t *testing.T) {
	repos := newTestRepos(t)
	chat := seedChat(t, repos, "C6000000000000000001", "alice", "bob")

	seedMessage(t, repos, 1, chat.Uuid, "alice", "old")
	time.Sleep(20 * time.Millisecond)
	floor := sql.NullTime{Time: time.Now(), Valid: true}
	time.Sleep(20 * time.Millisecond)
	seedMessage(t, repos, 2, chat.Uuid, "alice", "new")

	messages, err := repos.Message.FindBefore(chat.Uuid, 0, floor, 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, "new", messages[0].Content)

	last, err := repos.Message.FindLastByChatId(chat.Uuid, floor)
	require.NoError(t, err)
	require.Equal(t, int64(2), last.Uuid)

	// 不带下限时全部可见
	messages, err = repos.Message.FindBefore(chat.Uuid, 0, sql.NullTime{}, 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
}

// TestMarkReadMonotonic 已读状态只能单向迁移，重复标记不改写 read_at
func TestMarkReadMonotonic(t *testing.T) {
	repos := newTestRepos(t)
	chat := seedChat(t, repos, "C7000000000000000001", "alice", "bob")
	seedMessage(t, repos, 1, chat.Uuid, "alice", "hi")

	require.NoError(t, repos.Message.MarkReadByUuids([]int64{1}))
	first, err := repos.Message.FindByUuid(1)
	require.NoError(t, err)
	require.True(t, first.IsRead)
	require.True(t, first.ReadAt.Valid)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, repos.Message.MarkReadByUuids([]int64{1}))
	second, err := repos.Message.FindByUuid(1)
	require.NoError(t, err)
	require.Equal(t, first.ReadAt.Time.UnixNano(), second.ReadAt.Time.UnixNano())
}

func TestUnreadCount(t *testing.T) {
	repos := newTestRepos(t)
	chat := seedChat(t, repos, "C8000000000000000001", "alice", "bob")
	seedMessage(t, repos, 1, chat.Uuid, "alice", "a1")
	seedMessage(t, repos, 2, chat.Uuid, "alice", "a2")
	seedMessage(t, repos, 3, chat.Uuid, "bob", "b1")

	count, err := repos.Message.UnreadCount(chat.Uuid, "bob")
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	// 自己发的不算未读
	count, err = repos.Message.UnreadCount(chat.Uuid, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestHardDeleteCascadePieces(t *testing.T) {
	repos := newTestRepos(t)
	chat := seedChat(t, repos, "C9000000000000000001", "alice", "bob")
	seedMessage(t, repos, 1, chat.Uuid, "alice", "hi")
	require.NoError(t, repos.Attachment.CreateBatch([]model.Attachment{
		{Uuid: "att-1", MessageUuid: 1, Type: model.AttachmentImage, Url: "u", Name: "n"},
	}))

	err := repos.Transaction(func(tx *repository.Repositories) error {
		uuids, err := tx.Message.FindUuidsByChatId(chat.Uuid)
		if err != nil {
			return err
		}
		if err := tx.Attachment.HardDeleteByMessageUuids(uuids); err != nil {
			return err
		}
		if err := tx.Message.HardDeleteByChatId(chat.Uuid); err != nil {
			return err
		}
		return tx.Chat.HardDelete(chat.Uuid)
	})
	require.NoError(t, err)

	_, err = repos.Chat.FindByUuid(chat.Uuid)
	require.Error(t, err)
	atts, err := repos.Attachment.FindByMessageUuids([]int64{1})
	require.NoError(t, err)
	require.Empty(t, atts)
	uuids, err := repos.Message.FindUuidsByChatId(chat.Uuid)
	require.NoError(t, err)
	require.Empty(t, uuids)
}

func TestBlockLifecycle(t *testing.T) {
	repos := newTestRepos(t)
	require.NoError(t, repos.Block.Create(&model.UserBlock{BlockerId: "alice", BlockedId: "bob"}))

	blocks, err := repos.Block.FindActiveBetween("alice", "bob")
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	// 方向无关
	blocks, err = repos.Block.FindActiveBetween("bob", "alice")
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	require.NoError(t, repos.Block.End("alice", "bob"))
	blocks, err = repos.Block.FindActiveBetween("alice", "bob")
	require.NoError(t, err)
	require.Empty(t, blocks)
}

func TestUserFindAndSearch(t *testing.T) {
	repos := newTestRepos(t)
	require.NoError(t, repos.User.Create(&model.ChatUser{Uuid: "u1", AuthId: "a1", Nickname: "小明", Username: "ming"}))
	require.NoError(t, repos.User.Create(&model.ChatUser{Uuid: "u2", AuthId: "a2", Nickname: "小红", Username: "hong"}))

	got, err := repos.User.FindByAuthId("a2")
	require.NoError(t, err)
	require.Equal(t, "u2", got.Uuid)

	users, err := repos.User.FindByUuids([]string{"u1", "u2", "missing"})
	require.NoError(t, err)
	require.Len(t, users, 2)

	// 搜索排除自己
	found, err := repos.User.Search("小", "u1", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "u2", found[0].Uuid)
}
