// Package memory is an in-process implementation of repository.Store used by
// tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"echowaves-backend/internal/domain"
	"echowaves-backend/internal/repository"
)

type subscriptionKey struct {
	userID         int64
	conversationID int64
}

type reportKey struct {
	messageID int64
	userID    int64
}

// state is the whole dataset. Rows are stored by value so a shallow map copy is a snapshot.
type state struct {
	nextID        int64
	users         map[int64]domain.User
	conversations map[int64]domain.Conversation
	messages      map[int64]domain.Message
	reports       map[int64]domain.AbuseReport
	reportIndex   map[reportKey]int64
	subscriptions map[subscriptionKey]domain.Subscription
}

func newState() *state {
	return &state{
		users:         make(map[int64]domain.User),
		conversations: make(map[int64]domain.Conversation),
		messages:      make(map[int64]domain.Message),
		reports:       make(map[int64]domain.AbuseReport),
		reportIndex:   make(map[reportKey]int64),
		subscriptions: make(map[subscriptionKey]domain.Subscription),
	}
}

func (s *state) clone() *state {
	c := &state{
		nextID:        s.nextID,
		users:         make(map[int64]domain.User, len(s.users)),
		conversations: make(map[int64]domain.Conversation, len(s.conversations)),
		messages:      make(map[int64]domain.Message, len(s.messages)),
		reports:       make(map[int64]domain.AbuseReport, len(s.reports)),
		reportIndex:   make(map[reportKey]int64, len(s.reportIndex)),
		subscriptions: make(map[subscriptionKey]domain.Subscription, len(s.subscriptions)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.conversations {
		c.conversations[k] = v
	}
	for k, v := range s.messages {
		c.messages[k] = v
	}
	for k, v := range s.reports {
		c.reports[k] = v
	}
	for k, v := range s.reportIndex {
		c.reportIndex[k] = v
	}
	for k, v := range s.subscriptions {
		c.subscriptions[k] = v
	}
	return c
}

// Store is a serializable in-memory store: transactions run one at a time on a
// private copy of the state which replaces the shared state on commit.
type Store struct {
	mu    sync.RWMutex
	state *state
	now   func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source used for created/updated timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty store
func NewStore(opts ...Option) *Store {
	s := &Store{
		state: newState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithTx runs fn against a snapshot and commits it only if fn succeeds
func (s *Store) WithTx(ctx context.Context, fn func(q repository.Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(&queries{st: snapshot, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = snapshot
	return nil
}

func read[T any](s *Store, fn func(q *queries) (T, error)) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&queries{st: s.state, now: s.now})
}

func write[T any](ctx context.Context, s *Store, fn func(q *queries) (T, error)) (T, error) {
	var out T
	err := s.WithTx(ctx, func(q repository.Queries) error {
		var err error
		out, err = fn(q.(*queries))
		return err
	})
	return out, err
}

func (s *Store) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	return read(s, func(q *queries) (*domain.User, error) { return q.GetUser(ctx, userID) })
}

func (s *Store) UpsertUser(ctx context.Context, user *domain.User) error {
	_, err := write(ctx, s, func(q *queries) (struct{}, error) { return struct{}{}, q.UpsertUser(ctx, user) })
	return err
}

func (s *Store) SetPersonalConversation(ctx context.Context, userID, conversationID int64) error {
	_, err := write(ctx, s, func(q *queries) (struct{}, error) {
		return struct{}{}, q.SetPersonalConversation(ctx, userID, conversationID)
	})
	return err
}

func (s *Store) IncrementUserConversations(ctx context.Context, userID int64) error {
	_, err := write(ctx, s, func(q *queries) (struct{}, error) {
		return struct{}{}, q.IncrementUserConversations(ctx, userID)
	})
	return err
}

func (s *Store) IncrementUserMessages(ctx context.Context, userID int64) error {
	_, err := write(ctx, s, func(q *queries) (struct{}, error) {
		return struct{}{}, q.IncrementUserMessages(ctx, userID)
	})
	return err
}

func (s *Store) CountFollowing(ctx context.Context, userID int64) (int64, error) {
	return read(s, func(q *queries) (int64, error) { return q.CountFollowing(ctx, userID) })
}

func (s *Store) CountFollowers(ctx context.Context, userID int64) (int64, error) {
	return read(s, func(q *queries) (int64, error) { return q.CountFollowers(ctx, userID) })
}

func (s *Store) GetConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error) {
	return read(s, func(q *queries) (*domain.Conversation, error) { return q.GetConversation(ctx, conversationID) })
}

func (s *Store) GetConversationByUUID(ctx context.Context, uuid string) (*domain.Conversation, error) {
	return read(s, func(q *queries) (*domain.Conversation, error) { return q.GetConversationByUUID(ctx, uuid) })
}

func (s *Store) InsertConversation(ctx context.Context, conversation *domain.Conversation) error {
	_, err := write(ctx, s, func(q *queries) (struct{}, error) {
		return struct{}{}, q.InsertConversation(ctx, conversation)
	})
	return err
}

func (s *Store) IncrementConversationMessages(ctx context.Context, conversationID int64) error {
	_, err := write(ctx, s, func(q *queries) (struct{}, error) {
		return struct{}{}, q.IncrementConversationMessages(ctx, conversationID)
	})
	return err
}

func (s *Store) TouchConversation(ctx context.Context, conversationID int64, at time.Time) error {
	_, err := write(ctx, s, func(q *queries) (struct{}, error) {
		return struct{}{}, q.TouchConversation(ctx, conversationID, at)
	})
	return err
}

func (s *Store) GetMessage(ctx context.Context, messageID int64) (*domain.Message, error) {
	return read(s, func(q *queries) (*domain.Message, error) { return q.GetMessage(ctx, messageID) })
}

// GetMessageForUpdate outside a transaction is a plain read
func (s *Store) GetMessageForUpdate(ctx context.Context, messageID int64) (*domain.Message, error) {
	return s.GetMessage(ctx, messageID)
}

func (s *Store) InsertMessage(ctx context.Context, message *domain.Message) error {
	_, err := write(ctx, s, func(q *queries) (struct{}, error) {
		return struct{}{}, q.InsertMessage(ctx, message)
	})
	return err
}

func (s *Store) ListMessages(ctx context.Context, query domain.MessageQuery) ([]*domain.Message, error) {
	return read(s, func(q *queries) ([]*domain.Message, error) { return q.ListMessages(ctx, query) })
}

func (s *Store) CountMessages(ctx context.Context, query domain.MessageQuery) (int64, error) {
	return read(s, func(q *queries) (int64, error) { return q.CountMessages(ctx, query) })
}

func (s *Store) HideMessage(ctx context.Context, messageID, abuseReportID int64) (bool, error) {
	return write(ctx, s, func(q *queries) (bool, error) { return q.HideMessage(ctx, messageID, abuseReportID) })
}

func (s *Store) CreateAbuseReport(ctx context.Context, messageID, userID int64) (*domain.AbuseReport, bool, error) {
	type result struct {
		report  *domain.AbuseReport
		created bool
	}
	r, err := write(ctx, s, func(q *queries) (result, error) {
		report, created, err := q.CreateAbuseReport(ctx, messageID, userID)
		return result{report, created}, err
	})
	return r.report, r.created, err
}

func (s *Store) CountAbuseReports(ctx context.Context, messageID int64) (int64, error) {
	return read(s, func(q *queries) (int64, error) { return q.CountAbuseReports(ctx, messageID) })
}

func (s *Store) UpsertSubscriptionRead(ctx context.Context, userID, conversationID int64, at time.Time) (*domain.Subscription, error) {
	return write(ctx, s, func(q *queries) (*domain.Subscription, error) {
		return q.UpsertSubscriptionRead(ctx, userID, conversationID, at)
	})
}

func (s *Store) MarkSubscriptionRead(ctx context.Context, userID, conversationID int64) (bool, error) {
	return write(ctx, s, func(q *queries) (bool, error) {
		return q.MarkSubscriptionRead(ctx, userID, conversationID)
	})
}

func (s *Store) GetSubscription(ctx context.Context, userID, conversationID int64) (*domain.Subscription, error) {
	return read(s, func(q *queries) (*domain.Subscription, error) {
		return q.GetSubscription(ctx, userID, conversationID)
	})
}

func (s *Store) ListSubscriptions(ctx context.Context, userID int64) ([]*domain.SubscriptionSummary, error) {
	return read(s, func(q *queries) ([]*domain.SubscriptionSummary, error) { return q.ListSubscriptions(ctx, userID) })
}

// queries operates on one state without locking; the Store holds the lock.
type queries struct {
	st  *state
	now func() time.Time
}

func (q *queries) id() int64 {
	q.st.nextID++
	return q.st.nextID
}

func (q *queries) GetUser(_ context.Context, userID int64) (*domain.User, error) {
	u, ok := q.st.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (q *queries) UpsertUser(_ context.Context, user *domain.User) error {
	for id, u := range q.st.users {
		if u.Login == user.Login && id != user.ID {
			return repository.ErrConflict
		}
	}
	if existing, ok := q.st.users[user.ID]; ok {
		existing.Login = user.Login
		if user.Email != "" {
			existing.Email = user.Email
		}
		q.st.users[user.ID] = existing
		*user = existing
		return nil
	}
	if user.ID == 0 {
		user.ID = q.id()
	} else if user.ID > q.st.nextID {
		q.st.nextID = user.ID
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = q.now()
	}
	q.st.users[user.ID] = *user
	return nil
}

func (q *queries) SetPersonalConversation(_ context.Context, userID, conversationID int64) error {
	u, ok := q.st.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.PersonalConversationID = &conversationID
	q.st.users[userID] = u
	return nil
}

func (q *queries) IncrementUserConversations(_ context.Context, userID int64) error {
	u, ok := q.st.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.ConversationsCount++
	q.st.users[userID] = u
	return nil
}

func (q *queries) IncrementUserMessages(_ context.Context, userID int64) error {
	u, ok := q.st.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.MessagesCount++
	q.st.users[userID] = u
	return nil
}

func (q *queries) CountFollowing(_ context.Context, userID int64) (int64, error) {
	var n int64
	for k := range q.st.subscriptions {
		if k.userID == userID {
			n++
		}
	}
	return n, nil
}

func (q *queries) CountFollowers(_ context.Context, userID int64) (int64, error) {
	u, ok := q.st.users[userID]
	if !ok || u.PersonalConversationID == nil {
		return 0, nil
	}
	var n int64
	for k := range q.st.subscriptions {
		if k.conversationID == *u.PersonalConversationID && k.userID != userID {
			n++
		}
	}
	return n, nil
}

func (q *queries) GetConversation(_ context.Context, conversationID int64) (*domain.Conversation, error) {
	c, ok := q.st.conversations[conversationID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (q *queries) GetConversationByUUID(_ context.Context, uuid string) (*domain.Conversation, error) {
	for _, c := range q.st.conversations {
		if c.UUID == uuid {
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (q *queries) InsertConversation(_ context.Context, conversation *domain.Conversation) error {
	for _, c := range q.st.conversations {
		if c.Name == conversation.Name || (conversation.UUID != "" && c.UUID == conversation.UUID) {
			return repository.ErrConflict
		}
	}
	now := q.now()
	conversation.ID = q.id()
	conversation.CreatedAt = now
	conversation.UpdatedAt = now
	q.st.conversations[conversation.ID] = *conversation
	return nil
}

func (q *queries) IncrementConversationMessages(_ context.Context, conversationID int64) error {
	c, ok := q.st.conversations[conversationID]
	if !ok {
		return repository.ErrNotFound
	}
	c.MessagesCount++
	q.st.conversations[conversationID] = c
	return nil
}

func (q *queries) TouchConversation(_ context.Context, conversationID int64, at time.Time) error {
	c, ok := q.st.conversations[conversationID]
	if !ok {
		return repository.ErrNotFound
	}
	if c.PostedAt == nil || c.PostedAt.Before(at) {
		c.PostedAt = &at
	}
	c.UpdatedAt = q.now()
	q.st.conversations[conversationID] = c
	return nil
}

func (q *queries) GetMessage(_ context.Context, messageID int64) (*domain.Message, error) {
	m, ok := q.st.messages[messageID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

// GetMessageForUpdate needs no extra locking: the transaction already holds the store lock
func (q *queries) GetMessageForUpdate(ctx context.Context, messageID int64) (*domain.Message, error) {
	return q.GetMessage(ctx, messageID)
}

func (q *queries) InsertMessage(_ context.Context, message *domain.Message) error {
	if _, ok := q.st.conversations[message.ConversationID]; !ok {
		return repository.ErrNotFound
	}
	if _, ok := q.st.users[message.UserID]; !ok {
		return repository.ErrNotFound
	}
	now := q.now()
	message.ID = q.id()
	message.CreatedAt = now
	message.UpdatedAt = now
	row := *message
	if message.Attachment != nil {
		a := *message.Attachment
		row.Attachment = &a
	}
	q.st.messages[message.ID] = row
	return nil
}

func (q *queries) filterMessages(query domain.MessageQuery) []*domain.Message {
	var out []*domain.Message
	for _, m := range q.st.messages {
		m := m
		if query.Visible(&m) {
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (q *queries) ListMessages(_ context.Context, query domain.MessageQuery) ([]*domain.Message, error) {
	out := q.filterMessages(query)
	if query.Offset >= len(out) {
		return []*domain.Message{}, nil
	}
	out = out[query.Offset:]
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func (q *queries) CountMessages(_ context.Context, query domain.MessageQuery) (int64, error) {
	return int64(len(q.filterMessages(query))), nil
}

func (q *queries) HideMessage(_ context.Context, messageID, abuseReportID int64) (bool, error) {
	m, ok := q.st.messages[messageID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if m.AbuseReportID != nil {
		return false, nil
	}
	m.AbuseReportID = &abuseReportID
	m.UpdatedAt = q.now()
	q.st.messages[messageID] = m
	return true, nil
}

func (q *queries) CreateAbuseReport(_ context.Context, messageID, userID int64) (*domain.AbuseReport, bool, error) {
	if _, ok := q.st.messages[messageID]; !ok {
		return nil, false, repository.ErrNotFound
	}
	if _, ok := q.st.users[userID]; !ok {
		return nil, false, repository.ErrNotFound
	}
	key := reportKey{messageID: messageID, userID: userID}
	if id, ok := q.st.reportIndex[key]; ok {
		r := q.st.reports[id]
		return &r, false, nil
	}
	r := domain.AbuseReport{
		ID:        q.id(),
		MessageID: messageID,
		UserID:    userID,
		CreatedAt: q.now(),
	}
	q.st.reports[r.ID] = r
	q.st.reportIndex[key] = r.ID
	return &r, true, nil
}

func (q *queries) CountAbuseReports(_ context.Context, messageID int64) (int64, error) {
	var n int64
	for k := range q.st.reportIndex {
		if k.messageID == messageID {
			n++
		}
	}
	return n, nil
}

func (q *queries) UpsertSubscriptionRead(_ context.Context, userID, conversationID int64, at time.Time) (*domain.Subscription, error) {
	if _, ok := q.st.users[userID]; !ok {
		return nil, repository.ErrNotFound
	}
	if _, ok := q.st.conversations[conversationID]; !ok {
		return nil, repository.ErrNotFound
	}
	key := subscriptionKey{userID: userID, conversationID: conversationID}
	sub, ok := q.st.subscriptions[key]
	if !ok {
		sub = domain.Subscription{
			ID:             q.id(),
			UserID:         userID,
			ConversationID: conversationID,
			CreatedAt:      q.now(),
		}
	}
	if sub.LastReadAt == nil || sub.LastReadAt.Before(at) {
		sub.LastReadAt = &at
	}
	q.st.subscriptions[key] = sub
	return &sub, nil
}

func (q *queries) MarkSubscriptionRead(_ context.Context, userID, conversationID int64) (bool, error) {
	key := subscriptionKey{userID: userID, conversationID: conversationID}
	sub, ok := q.st.subscriptions[key]
	if !ok {
		return false, nil
	}
	at := q.now()
	if sub.LastReadAt == nil || sub.LastReadAt.Before(at) {
		sub.LastReadAt = &at
	}
	q.st.subscriptions[key] = sub
	return true, nil
}

func (q *queries) GetSubscription(_ context.Context, userID, conversationID int64) (*domain.Subscription, error) {
	sub, ok := q.st.subscriptions[subscriptionKey{userID: userID, conversationID: conversationID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sub, nil
}

func (q *queries) ListSubscriptions(_ context.Context, userID int64) ([]*domain.SubscriptionSummary, error) {
	var out []*domain.SubscriptionSummary
	for key, sub := range q.st.subscriptions {
		if key.userID != userID {
			continue
		}
		conv, ok := q.st.conversations[key.conversationID]
		if !ok {
			continue
		}
		summary := &domain.SubscriptionSummary{
			Conversation: conv,
			LastReadAt:   sub.LastReadAt,
		}
		for _, m := range q.st.messages {
			if m.ConversationID != conv.ID || !m.Published() {
				continue
			}
			if sub.LastReadAt == nil || m.CreatedAt.After(*sub.LastReadAt) {
				summary.UnreadCount++
			}
		}
		out = append(out, summary)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.UnreadCount != b.UnreadCount {
			return a.UnreadCount > b.UnreadCount
		}
		ap, bp := a.Conversation.PostedAt, b.Conversation.PostedAt
		switch {
		case ap != nil && bp == nil:
			return true
		case ap == nil && bp != nil:
			return false
		case ap != nil && bp != nil && !ap.Equal(*bp):
			return ap.After(*bp)
		}
		return a.Conversation.ID > b.Conversation.ID
	})
	return out, nil
}
