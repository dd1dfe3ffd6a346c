package cockroach

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"echowaves-backend/internal/domain"
)

const conversationColumns = `id, name, user_id, private, uuid, parent_message_id, messages_count, posted_at, created_at, updated_at`

func scanConversation(row pgx.Row, extra ...any) (*domain.Conversation, error) {
	var c domain.Conversation
	dest := []any{
		&c.ID,
		&c.Name,
		&c.OwnerID,
		&c.Private,
		&c.UUID,
		&c.ParentMessageID,
		&c.MessagesCount,
		&c.PostedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversation retrieves a conversation by ID
func (q *queries) GetConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error) {
	c, err := scanConversation(q.db.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, conversationID))
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation %d: %w", conversationID, mapError(err))
	}
	return c, nil
}

// GetConversationByUUID retrieves a conversation by its opaque uuid
func (q *queries) GetConversationByUUID(ctx context.Context, uuid string) (*domain.Conversation, error) {
	c, err := scanConversation(q.db.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE uuid = $1`, uuid))
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation by uuid: %w", mapError(err))
	}
	return c, nil
}

// InsertConversation creates a conversation; a duplicate name yields ErrConflict
func (q *queries) InsertConversation(ctx context.Context, conversation *domain.Conversation) error {
	query := `
		INSERT INTO conversations (name, user_id, private, uuid, parent_message_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := q.db.QueryRow(ctx, query,
		conversation.Name,
		conversation.OwnerID,
		conversation.Private,
		conversation.UUID,
		conversation.ParentMessageID,
	).Scan(&conversation.ID, &conversation.CreatedAt, &conversation.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", mapError(err))
	}
	return nil
}

// IncrementConversationMessages bumps the denormalized message counter
func (q *queries) IncrementConversationMessages(ctx context.Context, conversationID int64) error {
	err := expectOne(q.db.Exec(ctx,
		`UPDATE conversations SET messages_count = messages_count + 1 WHERE id = $1`, conversationID))
	if err != nil {
		return fmt.Errorf("failed to increment messages_count: %w", mapError(err))
	}
	return nil
}

// TouchConversation moves the last-activity timestamp forward to at
func (q *queries) TouchConversation(ctx context.Context, conversationID int64, at time.Time) error {
	query := `
		UPDATE conversations
		SET posted_at = CASE WHEN posted_at IS NULL OR posted_at < $2 THEN $2 ELSE posted_at END,
		    updated_at = now()
		WHERE id = $1
	`
	if err := expectOne(q.db.Exec(ctx, query, conversationID, at)); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", mapError(err))
	}
	return nil
}
