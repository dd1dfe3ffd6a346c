package domain

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"echowaves-backend/pkg/jwt"
)

const gravatarBaseURL = "https://www.gravatar.com/avatar/"

// User represents an account known to the chat core. Accounts are issued by the
// auth service and mirrored here from token claims on each authenticated request.
// Maps to CockroachDB users table
type User struct {
	ID                     int64     `json:"id" db:"id"`
	Login                  string    `json:"login" db:"login"`
	Email                  string    `json:"-" db:"email"`
	PersonalConversationID *int64    `json:"personal_conversation_id,omitempty" db:"personal_conversation_id"`
	ConversationsCount     int64     `json:"conversations_count" db:"conversations_count"`
	MessagesCount          int64     `json:"messages_count" db:"messages_count"`
	CreatedAt              time.Time `json:"created_at" db:"created_at"`
}

// GravatarURL builds the avatar URL from the normalized e-mail address
func (u *User) GravatarURL() string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(u.Email))))
	return gravatarBaseURL + hex.EncodeToString(sum[:])
}

// MemberSince formats the account creation date
func (u *User) MemberSince() string {
	return u.CreatedAt.Format("2006/01/02")
}

// UserProfile is a user with the social counters shown next to their messages
type UserProfile struct {
	User
	FollowingCount int64 `json:"following_count"`
	FollowersCount int64 `json:"followers_count"`
}

// Viewer identifies the authenticated caller of a read or write
type Viewer struct {
	UserID int64
	Role   string
}

// IsAdmin reports whether the viewer carries the admin role
func (v Viewer) IsAdmin() bool {
	return v.Role == jwt.RoleAdmin
}
