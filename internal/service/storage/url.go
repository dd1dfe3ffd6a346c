package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"echowaves-backend/internal/domain"
)

// Attachment styles. Big is the 400x400 thumbnail produced for images.
const (
	StyleOriginal = "original"
	StyleBig      = "big"
)

// ObjectPresigner is the part of the MinIO client used to sign download links
type ObjectPresigner interface {
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// ObjectKey is where the given style of a message attachment is stored
func ObjectKey(m *domain.Message, style string) string {
	return fmt.Sprintf("messages/%d/%s/%s", m.ID, style, m.Attachment.FileName)
}

// StaticURLResolver builds stable URLs served by a static file front end
type StaticURLResolver struct {
	base string
}

// NewStaticURLResolver creates a resolver rooted at base, e.g. "/attachments"
func NewStaticURLResolver(base string) *StaticURLResolver {
	return &StaticURLResolver{base: strings.TrimRight(base, "/")}
}

// AttachmentURL returns the URL of the given style, or "" when m has no attachment
func (r *StaticURLResolver) AttachmentURL(_ context.Context, m *domain.Message, style string) (string, error) {
	if !m.HasAttachment() {
		return "", nil
	}
	return fmt.Sprintf("%s/%d/%s/%s", r.base, m.ID, style, url.PathEscape(m.Attachment.FileName)), nil
}

// MinioURLResolver signs short-lived GET URLs against the attachment bucket
type MinioURLResolver struct {
	presigner ObjectPresigner
	bucket    string
	expiry    time.Duration
}

// NewMinioURLResolver creates a resolver for bucket. expiry defaults to one hour.
func NewMinioURLResolver(presigner ObjectPresigner, bucket string, expiry time.Duration) *MinioURLResolver {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &MinioURLResolver{presigner: presigner, bucket: bucket, expiry: expiry}
}

// AttachmentURL presigns the object holding the given style
func (r *MinioURLResolver) AttachmentURL(ctx context.Context, m *domain.Message, style string) (string, error) {
	if !m.HasAttachment() {
		return "", nil
	}
	params := url.Values{}
	params.Set("response-content-type", m.Attachment.ContentType)

	u, err := r.presigner.PresignedGetObject(ctx, r.bucket, ObjectKey(m, style), r.expiry, params)
	if err != nil {
		return "", fmt.Errorf("failed to presign attachment %d: %w", m.ID, err)
	}
	return u.String(), nil
}
