package moderation

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"echowaves-backend/internal/domain"
	"echowaves-backend/internal/repository/memory"
	"echowaves-backend/pkg/config"
	apperrors "echowaves-backend/pkg/errors"
)

type MockRetractor struct {
	mock.Mock
}

func (m *MockRetractor) EnqueueRetraction(messageID, conversationID int64) bool {
	args := m.Called(messageID, conversationID)
	return args.Bool(0)
}

type fixture struct {
	store *memory.Store
	owner *domain.User
	users []*domain.User
	conv  *domain.Conversation
	msg   *domain.Message
}

func newFixture(t *testing.T, reporters ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: memory.NewStore()}

	f.owner = &domain.User{Login: "alice"}
	require.NoError(t, f.store.UpsertUser(ctx, f.owner))
	for _, login := range reporters {
		u := &domain.User{Login: login}
		require.NoError(t, f.store.UpsertUser(ctx, u))
		f.users = append(f.users, u)
	}

	f.conv = &domain.Conversation{Name: "alice's lounge", OwnerID: f.owner.ID, UUID: "lounge"}
	require.NoError(t, f.store.InsertConversation(ctx, f.conv))

	f.msg = &domain.Message{ConversationID: f.conv.ID, UserID: f.owner.ID, Body: "hello"}
	require.NoError(t, f.store.InsertMessage(ctx, f.msg))
	return f
}

func (f *fixture) published(t *testing.T) bool {
	t.Helper()
	m, err := f.store.GetMessage(context.Background(), f.msg.ID)
	require.NoError(t, err)
	return m.Published()
}

func TestReportAbuse_Idempotent(t *testing.T) {
	f := newFixture(t, "bob")
	svc := NewService(f.store, config.ModerationConfig{AbuseThreshold: 3}, nil)
	ctx := context.Background()

	first, err := svc.ReportAbuse(ctx, f.msg.ID, f.users[0].ID)
	require.NoError(t, err)
	second, err := svc.ReportAbuse(ctx, f.msg.ID, f.users[0].ID)
	require.NoError(t, err)

	assert.True(t, first.ReportCreated)
	assert.False(t, second.ReportCreated)
	assert.Equal(t, int64(1), second.ReportCount)
	assert.Equal(t, domain.VisibilityPublished, second.Visibility)
}

func TestReportAbuse_HidesAfterThresholdExceeded(t *testing.T) {
	f := newFixture(t, "bob", "carol", "dan", "erin")
	svc := NewService(f.store, config.ModerationConfig{AbuseThreshold: 3}, nil)
	ctx := context.Background()

	for _, u := range f.users[:3] {
		out, err := svc.ReportAbuse(ctx, f.msg.ID, u.ID)
		require.NoError(t, err)
		assert.False(t, out.Hidden())
	}
	assert.True(t, f.published(t))

	out, err := svc.ReportAbuse(ctx, f.msg.ID, f.users[3].ID)
	require.NoError(t, err)
	assert.True(t, out.Hidden())
	assert.True(t, out.Transitioned)
	assert.Equal(t, int64(4), out.ReportCount)
	assert.False(t, f.published(t))
}

func TestReportAbuse_OwnerOverride(t *testing.T) {
	f := newFixture(t)
	retractor := new(MockRetractor)
	retractor.On("EnqueueRetraction", f.msg.ID, f.conv.ID).Return(true).Once()
	svc := NewService(f.store, config.ModerationConfig{AbuseThreshold: 3, BroadcastRetractions: true}, retractor)

	out, err := svc.ReportAbuse(context.Background(), f.msg.ID, f.owner.ID)

	require.NoError(t, err)
	assert.True(t, out.Hidden())
	assert.True(t, out.Transitioned)
	assert.Equal(t, int64(1), out.ReportCount)
	assert.False(t, f.published(t))
	retractor.AssertExpectations(t)

	m, err := f.store.GetMessage(context.Background(), f.msg.ID)
	require.NoError(t, err)
	require.NotNil(t, m.AbuseReportID)
}

func TestReportAbuse_RetractionsDisabled(t *testing.T) {
	f := newFixture(t)
	retractor := new(MockRetractor)
	svc := NewService(f.store, config.ModerationConfig{AbuseThreshold: 3}, retractor)

	_, err := svc.ReportAbuse(context.Background(), f.msg.ID, f.owner.ID)

	require.NoError(t, err)
	retractor.AssertNotCalled(t, "EnqueueRetraction", mock.Anything, mock.Anything)
}

func TestReportAbuse_Scenario(t *testing.T) {
	f := newFixture(t, "bob", "carol", "dan")
	retractor := new(MockRetractor)
	retractor.On("EnqueueRetraction", f.msg.ID, f.conv.ID).Return(true).Once()
	svc := NewService(f.store, config.ModerationConfig{AbuseThreshold: 2, BroadcastRetractions: true}, retractor)
	ctx := context.Background()
	bob, carol, dan := f.users[0], f.users[1], f.users[2]

	out, err := svc.ReportAbuse(ctx, f.msg.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VisibilityPublished, out.Visibility)
	assert.Equal(t, int64(1), out.ReportCount)

	out, err = svc.ReportAbuse(ctx, f.msg.ID, carol.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VisibilityPublished, out.Visibility)
	assert.Equal(t, int64(2), out.ReportCount)

	out, err = svc.ReportAbuse(ctx, f.msg.ID, dan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VisibilityHidden, out.Visibility)
	assert.Equal(t, int64(3), out.ReportCount)
	assert.True(t, out.Transitioned)

	out, err = svc.ReportAbuse(ctx, f.msg.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VisibilityHidden, out.Visibility)
	assert.Equal(t, int64(3), out.ReportCount)
	assert.False(t, out.Transitioned)
	assert.False(t, out.ReportCreated)

	retractor.AssertExpectations(t)
}

func TestReportAbuse_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t, "bob")
	svc := NewService(f.store, config.ModerationConfig{AbuseThreshold: 3}, nil)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	created := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := svc.ReportAbuse(ctx, f.msg.ID, f.users[0].ID)
			if assert.NoError(t, err) {
				created <- out.ReportCreated
			}
		}()
	}
	wg.Wait()
	close(created)

	createdCount := 0
	for c := range created {
		if c {
			createdCount++
		}
	}
	assert.Equal(t, 1, createdCount)

	count, err := f.store.CountAbuseReports(ctx, f.msg.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestReportAbuse_UnknownReferences(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.store, config.ModerationConfig{}, nil)
	ctx := context.Background()

	_, err := svc.ReportAbuse(ctx, 9999, f.owner.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeReferenceNotFound))

	_, err = svc.ReportAbuse(ctx, f.msg.ID, 9999)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeReferenceNotFound))

	count, err := f.store.CountAbuseReports(ctx, f.msg.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}
