package domain

import "time"

// Subscription tracks how far a user has read a conversation
// Maps to CockroachDB subscriptions table
type Subscription struct {
	ID             int64      `json:"id" db:"id"`
	UserID         int64      `json:"user_id" db:"user_id"`
	ConversationID int64      `json:"conversation_id" db:"conversation_id"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty" db:"last_read_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// SubscriptionSummary is a subscribed conversation with its unread count
type SubscriptionSummary struct {
	Conversation Conversation `json:"conversation"`
	LastReadAt   *time.Time   `json:"last_read_at,omitempty"`
	UnreadCount  int64        `json:"unread_count"`
}
