package cockroach

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"echowaves-backend/internal/domain"
)

// CreateAbuseReport records a report by userID on messageID. When the user already
// reported the message the existing row is returned with created=false.
func (q *queries) CreateAbuseReport(ctx context.Context, messageID, userID int64) (*domain.AbuseReport, bool, error) {
	var r domain.AbuseReport
	err := q.db.QueryRow(ctx, `
		INSERT INTO abuse_reports (message_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (message_id, user_id) DO NOTHING
		RETURNING id, message_id, user_id, created_at
	`, messageID, userID).Scan(&r.ID, &r.MessageID, &r.UserID, &r.CreatedAt)
	if err == nil {
		return &r, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to create abuse report: %w", mapError(err))
	}

	err = q.db.QueryRow(ctx, `
		SELECT id, message_id, user_id, created_at
		FROM abuse_reports
		WHERE message_id = $1 AND user_id = $2
	`, messageID, userID).Scan(&r.ID, &r.MessageID, &r.UserID, &r.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load abuse report: %w", mapError(err))
	}
	return &r, false, nil
}

// CountAbuseReports counts the distinct reporters of a message
func (q *queries) CountAbuseReports(ctx context.Context, messageID int64) (int64, error) {
	var n int64
	if err := q.db.QueryRow(ctx,
		`SELECT count(*) FROM abuse_reports WHERE message_id = $1`, messageID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count abuse reports: %w", err)
	}
	return n, nil
}
