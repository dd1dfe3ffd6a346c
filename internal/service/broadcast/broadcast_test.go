package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"echowaves-backend/internal/database"
	"echowaves-backend/internal/domain"
	"echowaves-backend/internal/repository/memory"
	"echowaves-backend/internal/service/storage"
	"echowaves-backend/pkg/config"
	apperrors "echowaves-backend/pkg/errors"
)

type MockBroker struct {
	mock.Mock
}

func (m *MockBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	args := m.Called(ctx, channel, payload)
	return args.Error(0)
}

type staticProfiles struct {
	profile *domain.UserProfile
	err     error
}

func (s staticProfiles) Profile(_ context.Context, userID int64) (*domain.UserProfile, error) {
	if s.err != nil {
		return nil, s.err
	}
	p := *s.profile
	p.ID = userID
	return &p, nil
}

func intPtr(v int) *int { return &v }

func testProfile() *domain.UserProfile {
	personal := int64(11)
	return &domain.UserProfile{
		User: domain.User{
			ID:                     3,
			Login:                  "Alice Smith",
			Email:                  "Alice@Example.com ",
			PersonalConversationID: &personal,
			ConversationsCount:     2,
			MessagesCount:          40,
			CreatedAt:              time.Date(2009, 3, 7, 0, 0, 0, 0, time.UTC),
		},
		FollowingCount: 5,
		FollowersCount: 8,
	}
}

func testMessage() *domain.Message {
	return &domain.Message{
		ID:             99,
		ConversationID: 42,
		UserID:         3,
		Body:           "hi <b>there</b>",
		BodyHTML:       "<p>hi &lt;b&gt;there&lt;/b&gt;</p>",
		CreatedAt:      time.Date(2024, 5, 6, 15, 4, 0, 0, time.UTC),
	}
}

func TestChannelName(t *testing.T) {
	private := &domain.Conversation{ID: 7, Private: true, UUID: "abc-123"}
	public := &domain.Conversation{ID: 42, UUID: "ignored"}

	assert.Equal(t, "CONVERSATION_CHANNEL_abc-123", ChannelName(private))
	assert.Equal(t, "CONVERSATION_CHANNEL_42", ChannelName(public))
}

func TestBuildPayload_Shape(t *testing.T) {
	conv := &domain.Conversation{ID: 42, Name: "Friday Night Jazz"}
	raw, err := json.Marshal(BuildPayload(testMessage(), conv, testProfile(), AttachmentURLs{}))
	require.NoError(t, err)

	var doc map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.NotContains(t, doc, "attachment")
	assert.Equal(t, false, doc["meta"]["has_attachment"])
	assert.Equal(t, float64(99), doc["message"]["id"])
	assert.Equal(t, "hi <b>there</b>", doc["message"]["raw_body"])
	assert.Equal(t, "May 06, 2024 03:04PM", doc["message"]["display_date"])
	assert.Equal(t, "03:04PM", doc["message"]["display_time"])
	assert.Equal(t, "friday-night-jazz", doc["convo"]["name"])
	assert.Equal(t, "alice-smith", doc["user"]["login"])
	assert.Equal(t, "2009/03/07", doc["user"]["member_since"])
	assert.Equal(t, float64(2), doc["user"]["conversations_started"])
	assert.Equal(t, float64(40), doc["user"]["messages_posted"])
	assert.Equal(t, float64(5), doc["user"]["following_count"])
	assert.Equal(t, float64(8), doc["user"]["followers_count"])
	assert.Equal(t, float64(11), doc["user"]["personal_conversation_id"])
	assert.Equal(t, testProfile().GravatarURL(), doc["user"]["avatar_url"])
}

func TestBuildPayload_Attachments(t *testing.T) {
	conv := &domain.Conversation{ID: 42, Name: "conversation"}
	urls := AttachmentURLs{Original: "/a/original", Big: "/a/big"}

	img := testMessage()
	img.Attachment = &domain.Attachment{ContentType: "image/png", Width: intPtr(640), Height: intPtr(480)}
	p := BuildPayload(img, conv, testProfile(), urls)
	require.NotNil(t, p.Attachment)
	assert.True(t, p.Meta.HasImage)
	assert.Equal(t, "/a/big", p.Attachment.ImageURL)
	assert.Equal(t, "/a/original", p.Attachment.URL)
	assert.Equal(t, 640, *p.Attachment.Width)

	pdf := testMessage()
	pdf.Attachment = &domain.Attachment{ContentType: "application/pdf", Width: intPtr(1), Height: intPtr(1)}
	p = BuildPayload(pdf, conv, testProfile(), urls)
	require.NotNil(t, p.Attachment)
	assert.True(t, p.Meta.HasPDF)
	assert.False(t, p.Meta.HasImage)
	assert.Empty(t, p.Attachment.ImageURL)
	assert.Nil(t, p.Attachment.Width)
	assert.Nil(t, p.Attachment.Height)
}

func TestPublisher_PublishesOnce(t *testing.T) {
	broker := new(MockBroker)
	conv := &domain.Conversation{ID: 42, Name: "conversation"}
	broker.On("Publish", mock.Anything, "CONVERSATION_CHANNEL_42", mock.Anything).Return(nil).Once()

	msg := testMessage()
	msg.Attachment = &domain.Attachment{ContentType: "image/png", FileName: "a.png"}
	p := NewPublisher(broker, staticProfiles{profile: testProfile()}, storage.NewStaticURLResolver("/attachments"), time.Second)

	require.NoError(t, p.Publish(context.Background(), msg, conv))
	broker.AssertExpectations(t)

	var payload Payload
	require.NoError(t, json.Unmarshal(broker.Calls[0].Arguments.Get(2).([]byte), &payload))
	assert.Equal(t, "/attachments/99/original/a.png", payload.Attachment.URL)
	assert.Equal(t, "/attachments/99/big/a.png", payload.Attachment.ImageURL)
}

func TestPublisher_SkipsHiddenMessage(t *testing.T) {
	broker := new(MockBroker)
	msg := testMessage()
	reportID := int64(1)
	msg.AbuseReportID = &reportID

	p := NewPublisher(broker, staticProfiles{profile: testProfile()}, nil, time.Second)

	require.NoError(t, p.Publish(context.Background(), msg, &domain.Conversation{ID: 42}))
	broker.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestPublisher_BrokerFailure(t *testing.T) {
	broker := new(MockBroker)
	broker.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection refused"))
	p := NewPublisher(broker, staticProfiles{profile: testProfile()}, nil, time.Second)

	err := p.Publish(context.Background(), testMessage(), &domain.Conversation{ID: 42})

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePublish))
	broker.AssertNumberOfCalls(t, "Publish", 1)
}

func TestPublisher_UnreachableRedis(t *testing.T) {
	client := database.NewRedisDB(config.RedisConfig{Host: "127.0.0.1", Port: 1, PoolSize: 1, Timeout: 200 * time.Millisecond}, nil)
	defer client.Close()
	p := NewPublisher(NewRedisBroker(client), staticProfiles{profile: testProfile()}, nil, 500*time.Millisecond)

	start := time.Now()
	err := p.Publish(context.Background(), testMessage(), &domain.Conversation{ID: 42})

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePublish))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPublishRetraction(t *testing.T) {
	broker := new(MockBroker)
	broker.On("Publish", mock.Anything, "CONVERSATION_CHANNEL_abc-123", mock.Anything).Return(nil)
	p := NewPublisher(broker, staticProfiles{profile: testProfile()}, nil, time.Second)

	conv := &domain.Conversation{ID: 5, Name: "Secret Plans", Private: true, UUID: "abc-123"}
	require.NoError(t, p.PublishRetraction(context.Background(), 77, conv))

	var doc RetractionPayload
	require.NoError(t, json.Unmarshal(broker.Calls[0].Arguments.Get(2).([]byte), &doc))
	assert.Equal(t, EventMessageHidden, doc.Event)
	assert.Equal(t, int64(77), doc.Message.ID)
	assert.Equal(t, "secret-plans", doc.Convo.Name)
}

// recordingPublisher captures dispatched work
type recordingPublisher struct {
	mu        sync.Mutex
	published []int64
	retracted []int64
	panicOnce bool
	panicked  bool
}

func (r *recordingPublisher) Publish(_ context.Context, msg *domain.Message, _ *domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.panicOnce && !r.panicked {
		r.panicked = true
		panic("boom")
	}
	r.published = append(r.published, msg.ID)
	return nil
}

func (r *recordingPublisher) PublishRetraction(_ context.Context, messageID int64, _ *domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retracted = append(r.retracted, messageID)
	return nil
}

func seedMessages(t *testing.T, n int) (*memory.Store, *domain.Conversation, []*domain.Message) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	user := &domain.User{Login: "alice"}
	require.NoError(t, store.UpsertUser(ctx, user))
	conv := &domain.Conversation{Name: "dispatching", OwnerID: user.ID, UUID: "d"}
	require.NoError(t, store.InsertConversation(ctx, conv))

	var msgs []*domain.Message
	for i := 0; i < n; i++ {
		m := &domain.Message{ConversationID: conv.ID, UserID: user.ID, Body: "hello"}
		require.NoError(t, store.InsertMessage(ctx, m))
		msgs = append(msgs, m)
	}
	return store, conv, msgs
}

func TestDispatcher_PublishesQueuedMessages(t *testing.T) {
	store, conv, msgs := seedMessages(t, 3)
	_, err := store.HideMessage(context.Background(), msgs[1].ID, 1)
	require.NoError(t, err)

	pub := &recordingPublisher{}
	d := NewDispatcher(store, pub, config.BroadcastConfig{Workers: 2, QueueSize: 10, PublishTimeout: time.Second})
	d.Start()

	for _, m := range msgs {
		assert.True(t, d.Enqueue(m.ID))
	}
	assert.True(t, d.Enqueue(12345))
	assert.True(t, d.EnqueueRetraction(msgs[1].ID, conv.ID))
	require.NoError(t, d.Stop(context.Background()))

	assert.ElementsMatch(t, []int64{msgs[0].ID, msgs[2].ID}, pub.published)
	assert.Equal(t, []int64{msgs[1].ID}, pub.retracted)
	assert.False(t, d.Enqueue(msgs[0].ID), "enqueue after stop must be refused")
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	store, _, msgs := seedMessages(t, 2)
	d := NewDispatcher(store, &recordingPublisher{}, config.BroadcastConfig{Workers: 1, QueueSize: 1})

	assert.True(t, d.Enqueue(msgs[0].ID))
	assert.False(t, d.Enqueue(msgs[1].ID))
}

func TestDispatcher_RecoversFromPanic(t *testing.T) {
	store, _, msgs := seedMessages(t, 2)
	pub := &recordingPublisher{panicOnce: true}
	d := NewDispatcher(store, pub, config.BroadcastConfig{Workers: 1, QueueSize: 10})
	d.Start()

	d.Enqueue(msgs[0].ID)
	d.Enqueue(msgs[1].ID)
	require.NoError(t, d.Stop(context.Background()))

	assert.True(t, pub.panicked)
	assert.Equal(t, []int64{msgs[1].ID}, pub.published)
}
