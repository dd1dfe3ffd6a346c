// Package storage validates attachment metadata and resolves attachment URLs.
// Blobs are uploaded and transcoded elsewhere; this service only reads metadata.
package storage

import (
	"fmt"
	"strings"

	"echowaves-backend/internal/domain"
	"echowaves-backend/pkg/config"
	apperrors "echowaves-backend/pkg/errors"
)

// Policy holds the attachment constraints enforced before a message is stored
type Policy struct {
	MaxSize      int64
	AllowedTypes []string
}

// NewPolicy builds a Policy from message config, falling back to defaults
func NewPolicy(cfg config.MessageConfig) *Policy {
	p := &Policy{
		MaxSize:      cfg.AttachmentMaxSize,
		AllowedTypes: cfg.AttachmentTypes,
	}
	if p.MaxSize <= 0 {
		p.MaxSize = config.DefaultAttachmentMaxSize
	}
	if len(p.AllowedTypes) == 0 {
		p.AllowedTypes = config.DefaultAttachmentTypes
	}
	return p
}

// Check returns an ATTACHMENT_REJECTED error when a is unacceptable. A nil
// attachment always passes.
func (p *Policy) Check(a *domain.Attachment) error {
	if a == nil {
		return nil
	}
	if a.FileSize < 0 {
		return apperrors.AttachmentRejectedError("attachment size is invalid")
	}
	if a.FileSize >= p.MaxSize {
		return apperrors.AttachmentRejectedError(fmt.Sprintf("attachment must be smaller than %d bytes", p.MaxSize))
	}
	if !p.allowed(a.ContentType) {
		return apperrors.AttachmentRejectedError(fmt.Sprintf("content type %q is not allowed", a.ContentType))
	}
	return nil
}

func (p *Policy) allowed(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	for _, t := range p.AllowedTypes {
		if ct == t {
			return true
		}
	}
	return false
}
