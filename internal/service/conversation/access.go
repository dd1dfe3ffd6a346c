package conversation

import (
	"context"
	"errors"
	"strconv"

	"echowaves-backend/internal/domain"
	"echowaves-backend/internal/repository"
	apperrors "echowaves-backend/pkg/errors"
)

// Lookup is the read side used to resolve conversations for a viewer
type Lookup interface {
	GetConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error)
	GetConversationByUUID(ctx context.Context, uuid string) (*domain.Conversation, error)
	GetSubscription(ctx context.Context, userID, conversationID int64) (*domain.Subscription, error)
}

// CanView reports whether viewer may reach conv by its numeric id. Public
// conversations are open to everyone. Private ones are open to the owner,
// admins and subscribers; everyone else needs the uuid.
func CanView(ctx context.Context, store Lookup, conv *domain.Conversation, viewer domain.Viewer) (bool, error) {
	if !conv.Private || conv.CanAudit(viewer) {
		return true, nil
	}
	if _, err := store.GetSubscription(ctx, viewer.UserID, conv.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Resolve finds the conversation addressed by key, a numeric id or a uuid.
// Holding the uuid grants access; a private conversation addressed by id is
// reported as not found unless CanView allows it.
func Resolve(ctx context.Context, store Lookup, key string, viewer domain.Viewer) (*domain.Conversation, error) {
	id, parseErr := strconv.ParseInt(key, 10, 64)
	var (
		conv *domain.Conversation
		err  error
	)
	if parseErr == nil {
		conv, err = store.GetConversation(ctx, id)
	} else {
		conv, err = store.GetConversationByUUID(ctx, key)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFoundError("conversation")
		}
		return nil, apperrors.StorageError(err)
	}
	if parseErr != nil {
		return conv, nil
	}

	visible, err := CanView(ctx, store, conv, viewer)
	if err != nil {
		return nil, apperrors.StorageError(err)
	}
	if !visible {
		return nil, apperrors.NotFoundError("conversation")
	}
	return conv, nil
}
