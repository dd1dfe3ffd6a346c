// Package subscription tracks which conversations a user follows and how far
// they have read each of them.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"echowaves-backend/internal/domain"
	"echowaves-backend/internal/repository"
	apperrors "echowaves-backend/pkg/errors"
	"echowaves-backend/pkg/logger"
)

// TrackerStore is the transactional subset used when a message is admitted
type TrackerStore interface {
	UpsertSubscriptionRead(ctx context.Context, userID, conversationID int64, at time.Time) (*domain.Subscription, error)
	TouchConversation(ctx context.Context, conversationID int64, at time.Time) error
}

// Store is what the read-state queries need
type Store interface {
	GetConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error)
	MarkSubscriptionRead(ctx context.Context, userID, conversationID int64) (bool, error)
	ListSubscriptions(ctx context.Context, userID int64) ([]*domain.SubscriptionSummary, error)
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	CountFollowing(ctx context.Context, userID int64) (int64, error)
	CountFollowers(ctx context.Context, userID int64) (int64, error)
}

// Service handles subscription and read-state logic
type Service struct {
	store Store
}

// NewService creates a new subscription service
func NewService(store Store) *Service {
	return &Service{store: store}
}

// EnsureSubscribedAndMarkRead subscribes the user if needed, marks the conversation
// read as of asOf and records asOf as the conversation's last activity. It runs on
// the caller's transaction; any error must abort it.
func (s *Service) EnsureSubscribedAndMarkRead(ctx context.Context, q TrackerStore, userID, conversationID int64, asOf time.Time) error {
	if _, err := q.UpsertSubscriptionRead(ctx, userID, conversationID, asOf); err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if err := q.TouchConversation(ctx, conversationID, asOf); err != nil {
		return fmt.Errorf("failed to update conversation activity: %w", err)
	}
	return nil
}

// MarkRead records that a subscriber has seen everything in the conversation,
// stamped with the store's clock so it compares with message timestamps.
// Viewers who are not subscribed are left alone; the returned bool says whether
// a subscription was updated.
func (s *Service) MarkRead(ctx context.Context, userID, conversationID int64) (bool, error) {
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, apperrors.NotFoundError("conversation")
		}
		return false, apperrors.StorageError(err)
	}

	marked, err := s.store.MarkSubscriptionRead(ctx, userID, conversationID)
	if err != nil {
		return false, apperrors.StorageError(err)
	}

	logger.Debug("Conversation marked read",
		zap.Int64("user_id", userID),
		zap.Int64("conversation_id", conversationID),
		zap.Bool("subscribed", marked))

	return marked, nil
}

// ListForUser returns the user's conversations ranked by unread count then activity
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]*domain.SubscriptionSummary, error) {
	summaries, err := s.store.ListSubscriptions(ctx, userID)
	if err != nil {
		return nil, apperrors.StorageError(err)
	}
	if summaries == nil {
		summaries = []*domain.SubscriptionSummary{}
	}
	return summaries, nil
}

// Profile loads a user with following/followers counts
func (s *Service) Profile(ctx context.Context, userID int64) (*domain.UserProfile, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ReferenceNotFoundError("user")
		}
		return nil, apperrors.StorageError(err)
	}

	following, err := s.store.CountFollowing(ctx, userID)
	if err != nil {
		return nil, apperrors.StorageError(err)
	}
	followers, err := s.store.CountFollowers(ctx, userID)
	if err != nil {
		return nil, apperrors.StorageError(err)
	}

	return &domain.UserProfile{
		User:           *user,
		FollowingCount: following,
		FollowersCount: followers,
	}, nil
}
