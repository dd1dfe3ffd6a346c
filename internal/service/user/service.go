package user

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"echowaves-backend/internal/domain"
	"echowaves-backend/internal/repository"
	apperrors "echowaves-backend/pkg/errors"
	"echowaves-backend/pkg/logger"
)

// Store is the persistence used by the user service
type Store interface {
	UpsertUser(ctx context.Context, user *domain.User) error
	GetConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error)
	SetPersonalConversation(ctx context.Context, userID, conversationID int64) error
}

// Service mirrors accounts from the auth service into the chat store
type Service struct {
	store Store
	// user id -> login already written by this process
	known sync.Map
}

// NewService creates a new user service
func NewService(store Store) *Service {
	return &Service{store: store}
}

// EnsureUser creates or refreshes the row for an authenticated user. Repeat
// calls with the same login are served from memory.
func (s *Service) EnsureUser(ctx context.Context, userID int64, login string) error {
	if userID <= 0 || login == "" {
		return apperrors.UnauthorizedError("Token is missing user claims")
	}
	if cached, ok := s.known.Load(userID); ok && cached.(string) == login {
		return nil
	}

	u := &domain.User{ID: userID, Login: login}
	if err := s.store.UpsertUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			logger.FromContext(ctx).Warn("Login claimed by another user",
				zap.Int64("user_id", userID),
				zap.String("login", login))
			return apperrors.ValidationError("login", "Login has already been taken")
		}
		return apperrors.StorageError(err)
	}

	s.known.Store(userID, login)
	return nil
}

// SetPersonalConversation points the user's profile at a conversation they own
func (s *Service) SetPersonalConversation(ctx context.Context, userID, conversationID int64) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ReferenceNotFoundError("conversation")
		}
		return apperrors.StorageError(err)
	}
	if !conv.IsOwnedBy(userID) {
		return apperrors.ForbiddenError("Only the owner can use a conversation as their personal one")
	}

	if err := s.store.SetPersonalConversation(ctx, userID, conversationID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ReferenceNotFoundError("user")
		}
		return apperrors.StorageError(err)
	}

	logger.FromContext(ctx).Info("Personal conversation set",
		zap.Int64("user_id", userID),
		zap.Int64("conversation_id", conversationID))
	return nil
}
