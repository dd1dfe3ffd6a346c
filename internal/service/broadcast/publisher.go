package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"echowaves-backend/internal/database"
	"echowaves-backend/internal/domain"
	"echowaves-backend/internal/service/storage"
	apperrors "echowaves-backend/pkg/errors"
	"echowaves-backend/pkg/logger"
	"echowaves-backend/pkg/metrics"
)

const defaultPublishTimeout = 2 * time.Second

// Broker delivers a serialized payload to every subscriber of channel
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// ProfileLoader loads the author block of the payload
type ProfileLoader interface {
	Profile(ctx context.Context, userID int64) (*domain.UserProfile, error)
}

// AttachmentURLResolver resolves the public link of an attachment style
type AttachmentURLResolver interface {
	AttachmentURL(ctx context.Context, m *domain.Message, style string) (string, error)
}

// RedisBroker publishes through Redis pub/sub
type RedisBroker struct {
	client *database.RedisClient
}

// NewRedisBroker creates a broker on top of the shared Redis client
func NewRedisBroker(client *database.RedisClient) *RedisBroker {
	return &RedisBroker{client: client}
}

// Publish sends payload on channel
func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.SafePublish(ctx, channel, payload)
}

// Publisher serializes messages and publishes them once, without retry.
type Publisher struct {
	broker   Broker
	profiles ProfileLoader
	urls     AttachmentURLResolver
	timeout  time.Duration
}

// NewPublisher creates a Publisher. timeout bounds each broker call.
func NewPublisher(broker Broker, profiles ProfileLoader, urls AttachmentURLResolver, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &Publisher{
		broker:   broker,
		profiles: profiles,
		urls:     urls,
		timeout:  timeout,
	}
}

// Publish sends msg to its conversation channel. Hidden messages are never sent.
// Errors are PUBLISH_ERROR app errors meant for logging only.
func (p *Publisher) Publish(ctx context.Context, msg *domain.Message, conv *domain.Conversation) error {
	channel := ChannelName(conv)
	if !msg.Published() {
		return nil
	}

	author, err := p.profiles.Profile(ctx, msg.UserID)
	if err != nil {
		return apperrors.PublishError(channel, fmt.Errorf("failed to load author: %w", err))
	}

	urls, err := p.attachmentURLs(ctx, msg)
	if err != nil {
		return apperrors.PublishError(channel, err)
	}

	body, err := json.Marshal(BuildPayload(msg, conv, author, urls))
	if err != nil {
		return apperrors.PublishError(channel, fmt.Errorf("failed to encode payload: %w", err))
	}

	return p.send(ctx, "message_created", channel, body)
}

// PublishRetraction announces that messageID was hidden
func (p *Publisher) PublishRetraction(ctx context.Context, messageID int64, conv *domain.Conversation) error {
	channel := ChannelName(conv)
	body, err := json.Marshal(BuildRetraction(messageID, conv))
	if err != nil {
		return apperrors.PublishError(channel, fmt.Errorf("failed to encode payload: %w", err))
	}
	return p.send(ctx, EventMessageHidden, channel, body)
}

func (p *Publisher) send(ctx context.Context, event, channel string, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	err := p.broker.Publish(pubCtx, channel, body)
	metrics.ChatPublishDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ChatMessagePublishedTotal.WithLabelValues(event, "error").Inc()
		return apperrors.PublishError(channel, err)
	}
	metrics.ChatMessagePublishedTotal.WithLabelValues(event, "success").Inc()
	logger.Debug("Published to conversation channel",
		zap.String("channel", channel),
		zap.String("event", event),
		zap.Int("bytes", len(body)))
	return nil
}

func (p *Publisher) attachmentURLs(ctx context.Context, msg *domain.Message) (AttachmentURLs, error) {
	var urls AttachmentURLs
	if !msg.HasAttachment() || p.urls == nil {
		return urls, nil
	}

	var err error
	if urls.Original, err = p.urls.AttachmentURL(ctx, msg, storage.StyleOriginal); err != nil {
		return urls, err
	}
	if msg.HasImage() {
		if urls.Big, err = p.urls.AttachmentURL(ctx, msg, storage.StyleBig); err != nil {
			return urls, err
		}
	}
	return urls, nil
}
