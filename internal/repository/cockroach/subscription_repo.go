package cockroach

import (
	"context"
	"fmt"
	"time"

	"echowaves-backend/internal/domain"
)

// UpsertSubscriptionRead creates the (user, conversation) subscription if needed and
// moves last_read_at forward to at.
func (q *queries) UpsertSubscriptionRead(ctx context.Context, userID, conversationID int64, at time.Time) (*domain.Subscription, error) {
	query := `
		INSERT INTO subscriptions (user_id, conversation_id, last_read_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, conversation_id) DO UPDATE
		SET last_read_at = CASE
			WHEN subscriptions.last_read_at IS NULL OR subscriptions.last_read_at < excluded.last_read_at
			THEN excluded.last_read_at
			ELSE subscriptions.last_read_at
		END
		RETURNING id, user_id, conversation_id, last_read_at, created_at
	`
	var s domain.Subscription
	err := q.db.QueryRow(ctx, query, userID, conversationID, at).Scan(
		&s.ID,
		&s.UserID,
		&s.ConversationID,
		&s.LastReadAt,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert subscription: %w", mapError(err))
	}
	return &s, nil
}

// MarkSubscriptionRead moves last_read_at forward to the database clock on an
// existing subscription. It reports false when the user is not subscribed.
func (q *queries) MarkSubscriptionRead(ctx context.Context, userID, conversationID int64) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE subscriptions
		SET last_read_at = CASE WHEN last_read_at IS NULL OR last_read_at < now() THEN now() ELSE last_read_at END
		WHERE user_id = $1 AND conversation_id = $2
	`, userID, conversationID)
	if err != nil {
		return false, fmt.Errorf("failed to mark subscription read: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetSubscription retrieves the subscription of a user to a conversation
func (q *queries) GetSubscription(ctx context.Context, userID, conversationID int64) (*domain.Subscription, error) {
	var s domain.Subscription
	err := q.db.QueryRow(ctx, `
		SELECT id, user_id, conversation_id, last_read_at, created_at
		FROM subscriptions
		WHERE user_id = $1 AND conversation_id = $2
	`, userID, conversationID).Scan(&s.ID, &s.UserID, &s.ConversationID, &s.LastReadAt, &s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", mapError(err))
	}
	return &s, nil
}

// ListSubscriptions returns the user's conversations ranked by unread published
// messages, then by most recent activity.
func (q *queries) ListSubscriptions(ctx context.Context, userID int64) ([]*domain.SubscriptionSummary, error) {
	query := `
		SELECT c.id, c.name, c.user_id, c.private, c.uuid, c.parent_message_id,
		       c.messages_count, c.posted_at, c.created_at, c.updated_at,
		       s.last_read_at,
		       (SELECT count(*) FROM messages m
		        WHERE m.conversation_id = c.id
		          AND m.abuse_report_id IS NULL
		          AND (s.last_read_at IS NULL OR m.created_at > s.last_read_at)) AS unread
		FROM subscriptions s
		JOIN conversations c ON c.id = s.conversation_id
		WHERE s.user_id = $1
		ORDER BY unread DESC, c.posted_at DESC NULLS LAST, c.id DESC
	`
	rows, err := q.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var summaries []*domain.SubscriptionSummary
	for rows.Next() {
		summary := &domain.SubscriptionSummary{}
		c, err := scanConversation(rows, &summary.LastReadAt, &summary.UnreadCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		summary.Conversation = *c
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}
	return summaries, nil
}
