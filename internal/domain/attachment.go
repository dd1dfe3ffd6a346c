package domain

import (
	"strings"
	"time"
)

// Attachment holds the metadata of a file attached to a message.
// The blob itself lives in object storage.
type Attachment struct {
	ContentType string    `json:"content_type" db:"attachment_content_type"`
	FileName    string    `json:"file_name" db:"attachment_file_name"`
	FileSize    int64     `json:"file_size" db:"attachment_file_size"`
	Width       *int      `json:"width,omitempty" db:"attachment_width"`
	Height      *int      `json:"height,omitempty" db:"attachment_height"`
	UpdatedAt   time.Time `json:"updated_at" db:"attachment_updated_at"`
}

func (a *Attachment) IsImage() bool {
	return strings.Contains(a.ContentType, "image")
}

func (a *Attachment) IsPDF() bool {
	return strings.Contains(a.ContentType, "pdf")
}

func (a *Attachment) IsZip() bool {
	return strings.Contains(a.ContentType, "zip")
}

// IsFile reports whether the attachment is a document rather than media
func (a *Attachment) IsFile() bool {
	return strings.HasPrefix(a.ContentType, "application")
}
