package repository

import (
	"context"
	"errors"
	"time"

	"echowaves-backend/internal/domain"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness constraint
	ErrConflict = errors.New("conflict")
)

// Queries is the set of storage operations available both on the store and
// inside a transaction.
type Queries interface {
	// Users
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	UpsertUser(ctx context.Context, user *domain.User) error
	SetPersonalConversation(ctx context.Context, userID, conversationID int64) error
	IncrementUserConversations(ctx context.Context, userID int64) error
	IncrementUserMessages(ctx context.Context, userID int64) error
	CountFollowing(ctx context.Context, userID int64) (int64, error)
	CountFollowers(ctx context.Context, userID int64) (int64, error)

	// Conversations
	GetConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error)
	GetConversationByUUID(ctx context.Context, uuid string) (*domain.Conversation, error)
	InsertConversation(ctx context.Context, conversation *domain.Conversation) error
	IncrementConversationMessages(ctx context.Context, conversationID int64) error
	TouchConversation(ctx context.Context, conversationID int64, at time.Time) error

	// Messages
	GetMessage(ctx context.Context, messageID int64) (*domain.Message, error)
	GetMessageForUpdate(ctx context.Context, messageID int64) (*domain.Message, error)
	InsertMessage(ctx context.Context, message *domain.Message) error
	ListMessages(ctx context.Context, query domain.MessageQuery) ([]*domain.Message, error)
	CountMessages(ctx context.Context, query domain.MessageQuery) (int64, error)
	HideMessage(ctx context.Context, messageID, abuseReportID int64) (bool, error)

	// Abuse reports
	CreateAbuseReport(ctx context.Context, messageID, userID int64) (*domain.AbuseReport, bool, error)
	CountAbuseReports(ctx context.Context, messageID int64) (int64, error)

	// Subscriptions
	UpsertSubscriptionRead(ctx context.Context, userID, conversationID int64, at time.Time) (*domain.Subscription, error)
	MarkSubscriptionRead(ctx context.Context, userID, conversationID int64) (bool, error)
	GetSubscription(ctx context.Context, userID, conversationID int64) (*domain.Subscription, error)
	ListSubscriptions(ctx context.Context, userID int64) ([]*domain.SubscriptionSummary, error)
}

// Store is the transactional storage backend.
//
// WithTx runs fn inside one transaction. If fn returns an error every write made
// through q is rolled back. Implementations may run fn more than once when the
// backend asks for a retry, so fn must not have side effects outside q.
type Store interface {
	Queries
	WithTx(ctx context.Context, fn func(q Queries) error) error
}
