package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echowaves-backend/internal/domain"
	"echowaves-backend/internal/repository"
)

func seed(t *testing.T, s *Store) (*domain.User, *domain.Conversation) {
	t.Helper()
	ctx := context.Background()

	user := &domain.User{Login: "alice", Email: "alice@example.com"}
	require.NoError(t, s.UpsertUser(ctx, user))

	conv := &domain.Conversation{Name: "general chat", OwnerID: user.ID, UUID: "uuid-1"}
	require.NoError(t, s.InsertConversation(ctx, conv))
	return user, conv
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := NewStore()
	user, conv := seed(t, s)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(q repository.Queries) error {
		msg := &domain.Message{ConversationID: conv.ID, UserID: user.ID, Body: "hi"}
		require.NoError(t, q.InsertMessage(ctx, msg))
		require.NoError(t, q.IncrementConversationMessages(ctx, conv.ID))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.MessagesCount)

	count, err := s.CountMessages(ctx, domain.MessageQuery{ConversationID: conv.ID, IncludeHidden: true})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestInsertConversation_NameConflict(t *testing.T) {
	s := NewStore()
	user, _ := seed(t, s)

	err := s.InsertConversation(context.Background(), &domain.Conversation{Name: "general chat", OwnerID: user.ID, UUID: "uuid-2"})

	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestCreateAbuseReport_Idempotent(t *testing.T) {
	s := NewStore()
	user, conv := seed(t, s)
	ctx := context.Background()
	msg := &domain.Message{ConversationID: conv.ID, UserID: user.ID, Body: "hi"}
	require.NoError(t, s.InsertMessage(ctx, msg))

	first, created, err := s.CreateAbuseReport(ctx, msg.ID, user.ID)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := s.CreateAbuseReport(ctx, msg.ID, user.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	count, err := s.CountAbuseReports(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestHideMessage_OnlyOnce(t *testing.T) {
	s := NewStore()
	user, conv := seed(t, s)
	ctx := context.Background()
	msg := &domain.Message{ConversationID: conv.ID, UserID: user.ID, Body: "hi"}
	require.NoError(t, s.InsertMessage(ctx, msg))

	changed, err := s.HideMessage(ctx, msg.ID, 100)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.HideMessage(ctx, msg.ID, 200)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AbuseReportID)
	assert.Equal(t, int64(100), *got.AbuseReportID)

	visible, err := s.ListMessages(ctx, domain.MessageQuery{ConversationID: conv.ID, Scope: domain.ScopePublished})
	require.NoError(t, err)
	assert.Empty(t, visible)
}

func TestUpsertSubscriptionRead_KeepsLatest(t *testing.T) {
	s := NewStore()
	user, conv := seed(t, s)
	ctx := context.Background()
	later := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	_, err := s.UpsertSubscriptionRead(ctx, user.ID, conv.ID, later)
	require.NoError(t, err)
	sub, err := s.UpsertSubscriptionRead(ctx, user.ID, conv.ID, earlier)
	require.NoError(t, err)

	assert.Equal(t, later, *sub.LastReadAt)
	following, err := s.CountFollowing(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), following)
}

func TestMarkSubscriptionRead_RequiresSubscription(t *testing.T) {
	s := NewStore()
	user, conv := seed(t, s)

	marked, err := s.MarkSubscriptionRead(context.Background(), user.ID, conv.ID)

	require.NoError(t, err)
	assert.False(t, marked)
}

func TestListSubscriptions_RankedByUnread(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore(WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	ctx := context.Background()
	reader, quiet := seed(t, s)
	writer := &domain.User{Login: "bob"}
	require.NoError(t, s.UpsertUser(ctx, writer))
	busy := &domain.Conversation{Name: "busy conversation", OwnerID: writer.ID, UUID: "uuid-2"}
	require.NoError(t, s.InsertConversation(ctx, busy))

	_, err := s.UpsertSubscriptionRead(ctx, reader.ID, quiet.ID, clock)
	require.NoError(t, err)
	_, err = s.UpsertSubscriptionRead(ctx, reader.ID, busy.ID, clock)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, s.InsertMessage(ctx, &domain.Message{ConversationID: busy.ID, UserID: writer.ID, Body: "news"}))
	}
	hidden := &domain.Message{ConversationID: quiet.ID, UserID: writer.ID, Body: "spam"}
	require.NoError(t, s.InsertMessage(ctx, hidden))
	_, err = s.HideMessage(ctx, hidden.ID, 1)
	require.NoError(t, err)

	list, err := s.ListSubscriptions(ctx, reader.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, busy.ID, list[0].Conversation.ID)
	assert.Equal(t, int64(2), list[0].UnreadCount)
	assert.Equal(t, quiet.ID, list[1].Conversation.ID)
	assert.Equal(t, int64(0), list[1].UnreadCount)
}

func TestCountFollowers_ExcludesSelf(t *testing.T) {
	s := NewStore()
	owner, personal := seed(t, s)
	ctx := context.Background()
	require.NoError(t, s.SetPersonalConversation(ctx, owner.ID, personal.ID))
	fan := &domain.User{Login: "bob"}
	require.NoError(t, s.UpsertUser(ctx, fan))

	_, err := s.UpsertSubscriptionRead(ctx, owner.ID, personal.ID, time.Now())
	require.NoError(t, err)
	_, err = s.UpsertSubscriptionRead(ctx, fan.ID, personal.ID, time.Now())
	require.NoError(t, err)

	followers, err := s.CountFollowers(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), followers)
}

func TestListMessages_NewestFirstWithPaging(t *testing.T) {
	s := NewStore()
	user, conv := seed(t, s)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		m := &domain.Message{ConversationID: conv.ID, UserID: user.ID, Body: "m"}
		require.NoError(t, s.InsertMessage(ctx, m))
		ids = append(ids, m.ID)
	}

	page, err := s.ListMessages(ctx, domain.MessageQuery{ConversationID: conv.ID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[1], page[1].ID)

	page, err = s.ListMessages(ctx, domain.MessageQuery{ConversationID: conv.ID, Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[0], page[0].ID)
}

func TestUpsertUser(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	user, _ := seed(t, s)
	require.NoError(t, s.IncrementUserMessages(ctx, user.ID))

	renamed := &domain.User{ID: user.ID, Login: "alice2"}
	require.NoError(t, s.UpsertUser(ctx, renamed))
	assert.Equal(t, "alice2", renamed.Login)
	assert.Equal(t, "alice@example.com", renamed.Email)
	assert.Equal(t, int64(1), renamed.MessagesCount)

	err := s.UpsertUser(ctx, &domain.User{ID: 999, Login: "alice2"})
	assert.True(t, errors.Is(err, repository.ErrConflict))

	_, err = s.GetUser(ctx, 999)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}
