package user

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echowaves-backend/internal/domain"
	"echowaves-backend/internal/repository/memory"
	apperrors "echowaves-backend/pkg/errors"
)

// countingStore records how often the user row is written
type countingStore struct {
	*memory.Store
	upserts int
	fail    error
}

func (c *countingStore) UpsertUser(ctx context.Context, u *domain.User) error {
	c.upserts++
	if c.fail != nil {
		return c.fail
	}
	return c.Store.UpsertUser(ctx, u)
}

func TestEnsureUser_CreatesRowFromClaims(t *testing.T) {
	store := &countingStore{Store: memory.NewStore()}
	svc := NewService(store)
	ctx := context.Background()

	require.NoError(t, svc.EnsureUser(ctx, 42, "alice"))

	u, err := store.GetUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Login)
	assert.False(t, u.CreatedAt.IsZero())

	require.NoError(t, svc.EnsureUser(ctx, 42, "alice"))
	assert.Equal(t, 1, store.upserts)
}

func TestEnsureUser_RenameKeepsCounters(t *testing.T) {
	store := &countingStore{Store: memory.NewStore()}
	svc := NewService(store)
	ctx := context.Background()

	require.NoError(t, svc.EnsureUser(ctx, 7, "bob"))
	require.NoError(t, store.IncrementUserMessages(ctx, 7))

	require.NoError(t, svc.EnsureUser(ctx, 7, "robert"))

	u, err := store.GetUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "robert", u.Login)
	assert.Equal(t, int64(1), u.MessagesCount)
	assert.Equal(t, 2, store.upserts)
}

func TestEnsureUser_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing claims", func(t *testing.T) {
		svc := NewService(&countingStore{Store: memory.NewStore()})
		err := svc.EnsureUser(ctx, 0, "ghost")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnauthorized))
	})

	t.Run("login taken", func(t *testing.T) {
		store := &countingStore{Store: memory.NewStore()}
		svc := NewService(store)
		require.NoError(t, svc.EnsureUser(ctx, 1, "alice"))

		err := svc.EnsureUser(ctx, 2, "alice")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	})

	t.Run("storage down", func(t *testing.T) {
		store := &countingStore{Store: memory.NewStore(), fail: errors.New("connection refused")}
		svc := NewService(store)

		err := svc.EnsureUser(ctx, 3, "carol")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeStorage))

		// failures are not cached
		store.fail = nil
		require.NoError(t, svc.EnsureUser(ctx, 3, "carol"))
		assert.Equal(t, 2, store.upserts)
	})
}

func TestSetPersonalConversation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store)
	require.NoError(t, svc.EnsureUser(ctx, 1, "alice"))
	require.NoError(t, svc.EnsureUser(ctx, 2, "bob"))
	conv := &domain.Conversation{Name: "alice thinks aloud", OwnerID: 1, UUID: "alice-home"}
	require.NoError(t, store.InsertConversation(ctx, conv))

	err := svc.SetPersonalConversation(ctx, 2, conv.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeForbidden))

	err = svc.SetPersonalConversation(ctx, 1, 9999)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeReferenceNotFound))

	require.NoError(t, svc.SetPersonalConversation(ctx, 1, conv.ID))
	u, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, u.PersonalConversationID)
	assert.Equal(t, conv.ID, *u.PersonalConversationID)
}
