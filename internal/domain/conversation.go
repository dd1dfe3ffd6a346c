package domain

import (
	"strconv"
	"time"
)

const (
	ConversationNameMinLength = 8
	ConversationNameMaxLength = 100
)

// Conversation represents a shared conversation
// Maps to CockroachDB conversations table
type Conversation struct {
	ID              int64      `json:"id" db:"id"`
	Name            string     `json:"name" db:"name"`
	OwnerID         int64      `json:"user_id" db:"user_id"`
	Private         bool       `json:"private" db:"private"`
	UUID            string     `json:"uuid" db:"uuid"`                                     // opaque, generated on create
	ParentMessageID *int64     `json:"parent_message_id,omitempty" db:"parent_message_id"` // message this conversation was spawned from
	MessagesCount   int64      `json:"messages_count" db:"messages_count"`
	PostedAt        *time.Time `json:"posted_at,omitempty" db:"posted_at"` // last activity
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// ChannelKey returns the public identifier of the conversation's broadcast topic.
// Private conversations are only addressable by their opaque uuid.
func (c *Conversation) ChannelKey() string {
	if c.Private {
		return c.UUID
	}
	return strconv.FormatInt(c.ID, 10)
}

// IsOwnedBy reports whether userID owns the conversation
func (c *Conversation) IsOwnedBy(userID int64) bool {
	return c.OwnerID == userID
}

// CanAudit reports whether v may see the conversation's hidden messages
func (c *Conversation) CanAudit(v Viewer) bool {
	return v.IsAdmin() || c.IsOwnedBy(v.UserID)
}

// ConversationCreate represents data to create a new conversation
type ConversationCreate struct {
	Name            string `json:"name" binding:"required"`
	Private         bool   `json:"private"`
	ParentMessageID *int64 `json:"parent_message_id,omitempty"`
}
