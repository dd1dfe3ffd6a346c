package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echowaves-backend/internal/domain"
	apperrors "echowaves-backend/pkg/errors"
)

type fakeSubscription struct {
	ch     chan []byte
	closed chan struct{}
	once   sync.Once
}

func (s *fakeSubscription) Messages() <-chan []byte { return s.ch }

func (s *fakeSubscription) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeSubscriber struct {
	subscribed chan *fakeSubscription
}

func (f *fakeSubscriber) Subscribe(_ context.Context, channel string) (Subscription, error) {
	sub := &fakeSubscription{ch: make(chan []byte, 8), closed: make(chan struct{})}
	f.subscribed <- sub
	return sub, nil
}

type fakeResolver map[string]*domain.Conversation

func (f fakeResolver) GetByChannelKey(_ context.Context, key string) (*domain.Conversation, error) {
	if conv, ok := f[key]; ok {
		return conv, nil
	}
	return nil, apperrors.NotFoundError("conversation")
}

func newTestServer(t *testing.T, authenticated bool) (*ChatHub, *fakeSubscriber, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	subscriber := &fakeSubscriber{subscribed: make(chan *fakeSubscription, 4)}
	hub := NewChatHub(subscriber, fakeResolver{
		"42":      {ID: 42, Name: "public room"},
		"abc-123": {ID: 7, Name: "private room", Private: true, UUID: "abc-123"},
	})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/v1/ws/conversations/:key", func(c *gin.Context) {
		if authenticated {
			c.Set("user_id", int64(1))
		}
		c.Next()
	}, hub.ServeWS)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, subscriber, srv
}

func wsURL(srv *httptest.Server, key string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws/conversations/" + key
}

func waitSubscription(t *testing.T, s *fakeSubscriber) *fakeSubscription {
	t.Helper()
	select {
	case sub := <-s.subscribed:
		return sub
	case <-time.After(2 * time.Second):
		t.Fatal("channel was never subscribed")
		return nil
	}
}

func TestServeWS_RelaysPayloadVerbatim(t *testing.T) {
	hub, subscriber, srv := newTestServer(t, true)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "abc-123"), nil)
	require.NoError(t, err)
	defer conn.Close()

	sub := waitSubscription(t, subscriber)
	assert.Eventually(t, func() bool {
		return hub.ClientCount("CONVERSATION_CHANNEL_abc-123") == 1
	}, 2*time.Second, 10*time.Millisecond)

	payload := []byte(`{"message":{"id":1}}`)
	sub.ch <- payload

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, got, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestServeWS_ReleasesSubscriptionWhenLastClientLeaves(t *testing.T) {
	hub, subscriber, srv := newTestServer(t, true)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "42"), nil)
	require.NoError(t, err)
	sub := waitSubscription(t, subscriber)

	require.NoError(t, conn.Close())

	select {
	case <-sub.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription was not released")
	}
	assert.Equal(t, 0, hub.ClientCount("CONVERSATION_CHANNEL_42"))
}

func TestServeWS_UnknownConversation(t *testing.T) {
	_, _, srv := newTestServer(t, true)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "7"), nil)

	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeWS_Unauthenticated(t *testing.T) {
	_, _, srv := newTestServer(t, false)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "42"), nil)

	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
