package domain

import "time"

// AbuseReport records that a user flagged a message. At most one per (message, user).
// Maps to CockroachDB abuse_reports table
type AbuseReport struct {
	ID        int64     `json:"id" db:"id"`
	MessageID int64     `json:"message_id" db:"message_id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Visibility is the moderation state of a message
type Visibility string

const (
	VisibilityPublished Visibility = "published"
	VisibilityHidden    Visibility = "hidden"
)

// ModerationOutcome is the result of one ReportAbuse call
type ModerationOutcome struct {
	MessageID   int64      `json:"message_id"`
	Visibility  Visibility `json:"visibility"`
	ReportCount int64      `json:"report_count"`
	// ReportCreated is false when the caller had already reported the message
	ReportCreated bool `json:"report_created"`
	// Transitioned is true only for the call that hid the message
	Transitioned bool `json:"transitioned"`
}

func (o ModerationOutcome) Hidden() bool {
	return o.Visibility == VisibilityHidden
}
