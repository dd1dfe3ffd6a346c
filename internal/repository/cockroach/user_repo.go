package cockroach

import (
	"context"
	"fmt"

	"echowaves-backend/internal/domain"
)

const userColumns = `id, login, email, personal_conversation_id, conversations_count, messages_count, created_at`

// GetUser retrieves a user by ID
func (q *queries) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	var u domain.User
	err := q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID).Scan(
		&u.ID,
		&u.Login,
		&u.Email,
		&u.PersonalConversationID,
		&u.ConversationsCount,
		&u.MessagesCount,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", userID, mapError(err))
	}
	return &u, nil
}

// UpsertUser creates the user row or refreshes its login. The ID is generated
// when zero; an empty email keeps the stored one. user is filled from the row.
func (q *queries) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, login, email)
		VALUES (COALESCE(NULLIF($1, 0), unique_rowid()), $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET login = excluded.login,
			email = CASE WHEN excluded.email = '' THEN users.email ELSE excluded.email END
		RETURNING ` + userColumns
	err := q.db.QueryRow(ctx, query, user.ID, user.Login, user.Email).Scan(
		&user.ID,
		&user.Login,
		&user.Email,
		&user.PersonalConversationID,
		&user.ConversationsCount,
		&user.MessagesCount,
		&user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", mapError(err))
	}
	return nil
}

// SetPersonalConversation links a user to their personal conversation
func (q *queries) SetPersonalConversation(ctx context.Context, userID, conversationID int64) error {
	err := expectOne(q.db.Exec(ctx,
		`UPDATE users SET personal_conversation_id = $2 WHERE id = $1`, userID, conversationID))
	if err != nil {
		return fmt.Errorf("failed to set personal conversation: %w", mapError(err))
	}
	return nil
}

// IncrementUserConversations bumps the conversations-started counter
func (q *queries) IncrementUserConversations(ctx context.Context, userID int64) error {
	err := expectOne(q.db.Exec(ctx,
		`UPDATE users SET conversations_count = conversations_count + 1 WHERE id = $1`, userID))
	if err != nil {
		return fmt.Errorf("failed to increment conversations_count: %w", mapError(err))
	}
	return nil
}

// IncrementUserMessages bumps the messages-posted counter
func (q *queries) IncrementUserMessages(ctx context.Context, userID int64) error {
	err := expectOne(q.db.Exec(ctx,
		`UPDATE users SET messages_count = messages_count + 1 WHERE id = $1`, userID))
	if err != nil {
		return fmt.Errorf("failed to increment messages_count: %w", mapError(err))
	}
	return nil
}

// CountFollowing counts the conversations a user is subscribed to
func (q *queries) CountFollowing(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM subscriptions WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count following: %w", err)
	}
	return n, nil
}

// CountFollowers counts the other users subscribed to the user's personal conversation
func (q *queries) CountFollowers(ctx context.Context, userID int64) (int64, error) {
	query := `
		SELECT count(*)
		FROM subscriptions s
		JOIN users u ON u.personal_conversation_id = s.conversation_id
		WHERE u.id = $1 AND s.user_id <> $1
	`
	var n int64
	if err := q.db.QueryRow(ctx, query, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count followers: %w", err)
	}
	return n, nil
}
