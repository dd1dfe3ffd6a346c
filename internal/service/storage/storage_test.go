package storage

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"echowaves-backend/internal/domain"
	"echowaves-backend/pkg/config"
	apperrors "echowaves-backend/pkg/errors"
)

type MockObjectStorage struct {
	mock.Mock
}

func (m *MockObjectStorage) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectStorage) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	args := m.Called(ctx, bucketName, opts)
	return args.Error(0)
}

func (m *MockObjectStorage) PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error) {
	args := m.Called(ctx, bucketName, objectName, expires, reqParams)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*url.URL), args.Error(1)
}

func imageMessage() *domain.Message {
	return &domain.Message{
		ID: 7,
		Attachment: &domain.Attachment{
			ContentType: "image/png",
			FileName:    "cat picture.png",
			FileSize:    1024,
		},
	}
}

func TestPolicyCheck(t *testing.T) {
	policy := NewPolicy(config.MessageConfig{})

	tests := []struct {
		name       string
		attachment *domain.Attachment
		wantErr    bool
	}{
		{"no attachment", nil, false},
		{"small png", &domain.Attachment{ContentType: "image/png", FileSize: 10}, false},
		{"just under limit", &domain.Attachment{ContentType: "application/pdf", FileSize: config.DefaultAttachmentMaxSize - 1}, false},
		{"at limit", &domain.Attachment{ContentType: "application/pdf", FileSize: config.DefaultAttachmentMaxSize}, true},
		{"unknown type", &domain.Attachment{ContentType: "text/html", FileSize: 10}, true},
		{"negative size", &domain.Attachment{ContentType: "image/png", FileSize: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Check(tt.attachment)
			if tt.wantErr {
				assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAttachmentRejected))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPolicyCheck_CustomTypes(t *testing.T) {
	policy := NewPolicy(config.MessageConfig{AttachmentMaxSize: 100, AttachmentTypes: []string{"text/plain"}})

	assert.NoError(t, policy.Check(&domain.Attachment{ContentType: "Text/Plain", FileSize: 99}))
	assert.Error(t, policy.Check(&domain.Attachment{ContentType: "image/png", FileSize: 1}))
}

func TestStaticURLResolver(t *testing.T) {
	r := NewStaticURLResolver("/attachments/")
	ctx := context.Background()

	got, err := r.AttachmentURL(ctx, imageMessage(), StyleBig)
	require.NoError(t, err)
	assert.Equal(t, "/attachments/7/big/cat%20picture.png", got)

	got, err = r.AttachmentURL(ctx, &domain.Message{ID: 8}, StyleOriginal)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMinioURLResolver(t *testing.T) {
	store := new(MockObjectStorage)
	ctx := context.Background()
	signed, _ := url.Parse("https://minio.local/attachments/messages/7/original/cat%20picture.png?X-Amz-Signature=abc")
	store.On("PresignedGetObject", ctx, "attachments", "messages/7/original/cat picture.png", 15*time.Minute, mock.Anything).
		Return(signed, nil)

	r := NewMinioURLResolver(store, "attachments", 15*time.Minute)
	got, err := r.AttachmentURL(ctx, imageMessage(), StyleOriginal)

	require.NoError(t, err)
	assert.Equal(t, signed.String(), got)
	store.AssertExpectations(t)
}

func TestMinioClient_EnsureBucket(t *testing.T) {
	store := new(MockObjectStorage)
	ctx := context.Background()
	store.On("BucketExists", ctx, "attachments").Return(false, nil)
	store.On("MakeBucket", ctx, "attachments", mock.Anything).Return(nil)

	require.NoError(t, newMinioClient(store).EnsureBucket(ctx, "attachments"))
	store.AssertExpectations(t)
}

func TestMinioClient_CircuitBreaker(t *testing.T) {
	store := new(MockObjectStorage)
	store.On("PresignedGetObject", mock.Anything, "b", "k", time.Minute, mock.Anything).
		Return(nil, errors.New("connection refused"))

	client := newMinioClient(store)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < client.config.MaxFailures; i++ {
		_, err := client.PresignedGetObject(ctx, "b", "k", time.Minute, nil)
		require.Error(t, err)
	}
	assert.Equal(t, CircuitBreakerOpen, client.GetState())

	_, err := client.PresignedGetObject(ctx, "b", "k", time.Minute, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	store.AssertNumberOfCalls(t, "PresignedGetObject", client.config.MaxFailures)

	now = now.Add(client.config.ResetTimeout)
	_, err = client.PresignedGetObject(ctx, "b", "k", time.Minute, nil)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, CircuitBreakerOpen, client.GetState())
}
