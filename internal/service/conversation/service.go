// Package conversation creates conversations and resolves them by id or channel key.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"echowaves-backend/internal/domain"
	"echowaves-backend/internal/repository"
	"echowaves-backend/internal/service/ledger"
	"echowaves-backend/internal/service/subscription"
	apperrors "echowaves-backend/pkg/errors"
	"echowaves-backend/pkg/logger"
	"echowaves-backend/pkg/sanitize"
)

// Counter is the counter ledger
type Counter interface {
	IncrementOnConversationCreate(ctx context.Context, q ledger.CounterStore, ownerID int64) error
}

// Tracker subscribes the owner to the new conversation
type Tracker interface {
	EnsureSubscribedAndMarkRead(ctx context.Context, q subscription.TrackerStore, userID, conversationID int64, asOf time.Time) error
}

// Service handles conversation business logic
type Service struct {
	store   repository.Store
	counter Counter
	tracker Tracker
}

// NewService creates a new conversation service
func NewService(store repository.Store, counter Counter, tracker Tracker) *Service {
	return &Service{
		store:   store,
		counter: counter,
		tracker: tracker,
	}
}

// Create validates and stores a conversation owned by ownerID. The owner is
// subscribed to it and their conversation counter is incremented.
func (s *Service) Create(ctx context.Context, ownerID int64, input *domain.ConversationCreate) (*domain.Conversation, error) {
	name := strings.TrimSpace(input.Name)
	if sanitize.IsBlank(name) {
		return nil, apperrors.ValidationError("name", "Name can't be blank")
	}
	if !sanitize.ValidateStringLength(name, domain.ConversationNameMinLength, domain.ConversationNameMaxLength) {
		return nil, apperrors.ValidationError("name", fmt.Sprintf("Name must be between %d and %d characters",
			domain.ConversationNameMinLength, domain.ConversationNameMaxLength))
	}

	if _, err := s.store.GetUser(ctx, ownerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ReferenceNotFoundError("user")
		}
		return nil, apperrors.StorageError(err)
	}

	var conv *domain.Conversation
	err := s.store.WithTx(ctx, func(q repository.Queries) error {
		if input.ParentMessageID != nil {
			if _, err := q.GetMessage(ctx, *input.ParentMessageID); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return apperrors.ReferenceNotFoundError("parent_message")
				}
				return err
			}
		}

		conv = &domain.Conversation{
			Name:            name,
			OwnerID:         ownerID,
			Private:         input.Private,
			UUID:            uuid.New().String(),
			ParentMessageID: input.ParentMessageID,
		}
		if err := q.InsertConversation(ctx, conv); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return apperrors.ValidationError("name", "Name has already been taken")
			}
			return fmt.Errorf("failed to insert conversation: %w", err)
		}
		if err := s.counter.IncrementOnConversationCreate(ctx, q, ownerID); err != nil {
			return err
		}
		return s.tracker.EnsureSubscribedAndMarkRead(ctx, q, ownerID, conv.ID, conv.CreatedAt)
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		logger.FromContext(ctx).Error("Conversation create failed", zap.Int64("user_id", ownerID), zap.Error(err))
		return nil, apperrors.StorageError(err)
	}

	// the tracker moved posted_at inside the transaction
	conv.PostedAt = &conv.CreatedAt

	logger.FromContext(ctx).Info("Conversation created",
		zap.Int64("conversation_id", conv.ID),
		zap.Int64("user_id", ownerID),
		zap.Bool("private", conv.Private))

	return conv, nil
}

// Resolve returns the conversation addressed by key (id or uuid) as seen by viewer
func (s *Service) Resolve(ctx context.Context, key string, viewer domain.Viewer) (*domain.Conversation, error) {
	return Resolve(ctx, s.store, key, viewer)
}

// GetByChannelKey resolves the key used in channel names: the numeric id of a
// public conversation or the uuid of a private one. Any other key is not found.
func (s *Service) GetByChannelKey(ctx context.Context, key string) (*domain.Conversation, error) {
	var (
		conv *domain.Conversation
		err  error
	)
	if id, parseErr := strconv.ParseInt(key, 10, 64); parseErr == nil {
		conv, err = s.store.GetConversation(ctx, id)
	} else {
		conv, err = s.store.GetConversationByUUID(ctx, key)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFoundError("conversation")
		}
		return nil, apperrors.StorageError(err)
	}
	if conv.ChannelKey() != key {
		return nil, apperrors.NotFoundError("conversation")
	}
	return conv, nil
}
