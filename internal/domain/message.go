package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	displayDateLayout = "Jan 02, 2006 03:04PM"
	displayTimeLayout = "03:04PM"
)

// Message represents a chat message entity
// Maps to CockroachDB messages table
//
// A message is published while AbuseReportID is nil. Once moderation sets it the
// message is hidden for good.
type Message struct {
	ID             int64       `json:"id" db:"id"`
	ConversationID int64       `json:"conversation_id" db:"conversation_id"`
	UserID         int64       `json:"user_id" db:"user_id"`
	Body           string      `json:"message" db:"message"`
	BodyHTML       string      `json:"message_html" db:"message_html"`
	SystemMessage  bool        `json:"system_message" db:"system_message"`
	AbuseReportID  *int64      `json:"-" db:"abuse_report_id"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// Published reports whether the message is visible on normal read paths
func (m *Message) Published() bool {
	return m.AbuseReportID == nil
}

func (m *Message) HasAttachment() bool {
	return m.Attachment != nil
}

func (m *Message) HasImage() bool {
	return m.HasAttachment() && m.Attachment.IsImage()
}

func (m *Message) HasPDF() bool {
	return m.HasAttachment() && m.Attachment.IsPDF()
}

func (m *Message) HasZip() bool {
	return m.HasAttachment() && m.Attachment.IsZip()
}

// DisplayDate formats the creation time for message headers
func (m *Message) DisplayDate() string {
	return m.CreatedAt.Format(displayDateLayout)
}

// DisplayTime formats the creation time of day
func (m *Message) DisplayTime() string {
	return m.CreatedAt.Format(displayTimeLayout)
}

// MessageScope selects a subset of a conversation's messages
type MessageScope string

const (
	ScopePublished MessageScope = "published"
	ScopeWithFile  MessageScope = "with_file"
	ScopeWithImage MessageScope = "with_image"
	ScopeSystem    MessageScope = "system"
	ScopeNonSystem MessageScope = "non_system"
)

// ParseMessageScope validates a scope name; empty selects ScopePublished
func ParseMessageScope(s string) (MessageScope, error) {
	switch scope := MessageScope(s); scope {
	case "":
		return ScopePublished, nil
	case ScopePublished, ScopeWithFile, ScopeWithImage, ScopeSystem, ScopeNonSystem:
		return scope, nil
	default:
		return "", fmt.Errorf("unknown message scope %q", s)
	}
}

// Matches reports whether m belongs to the scope, ignoring visibility
func (s MessageScope) Matches(m *Message) bool {
	switch s {
	case ScopeWithFile:
		return m.HasAttachment() && m.Attachment.IsFile()
	case ScopeWithImage:
		return m.HasAttachment() && strings.HasPrefix(m.Attachment.ContentType, "image")
	case ScopeSystem:
		return m.SystemMessage
	case ScopeNonSystem:
		return !m.SystemMessage
	default:
		return true
	}
}

// MessageQuery describes a page of messages in one conversation.
// Hidden messages are excluded unless IncludeHidden is set.
type MessageQuery struct {
	ConversationID int64
	Scope          MessageScope
	IncludeHidden  bool
	Limit          int
	Offset         int
}

// Visible reports whether m passes the query's scope and visibility filters
func (q MessageQuery) Visible(m *Message) bool {
	if m.ConversationID != q.ConversationID {
		return false
	}
	if !q.IncludeHidden && !m.Published() {
		return false
	}
	return q.Scope.Matches(m)
}
