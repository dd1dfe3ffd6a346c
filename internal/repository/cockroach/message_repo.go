package cockroach

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"echowaves-backend/internal/domain"
)

const messageColumns = `id, conversation_id, user_id, message, message_html, system_message, abuse_report_id,
	attachment_content_type, attachment_file_name, attachment_file_size,
	attachment_width, attachment_height, attachment_updated_at, created_at, updated_at`

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var (
		m           domain.Message
		contentType *string
		fileName    *string
		fileSize    *int64
		width       *int
		height      *int
		updatedAt   *time.Time
	)
	err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&m.UserID,
		&m.Body,
		&m.BodyHTML,
		&m.SystemMessage,
		&m.AbuseReportID,
		&contentType,
		&fileName,
		&fileSize,
		&width,
		&height,
		&updatedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if contentType != nil {
		a := &domain.Attachment{ContentType: *contentType, Width: width, Height: height}
		if fileName != nil {
			a.FileName = *fileName
		}
		if fileSize != nil {
			a.FileSize = *fileSize
		}
		if updatedAt != nil {
			a.UpdatedAt = *updatedAt
		}
		m.Attachment = a
	}
	return &m, nil
}

// GetMessage retrieves a message by ID regardless of visibility
func (q *queries) GetMessage(ctx context.Context, messageID int64) (*domain.Message, error) {
	m, err := scanMessage(q.db.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, messageID))
	if err != nil {
		return nil, fmt.Errorf("failed to get message %d: %w", messageID, mapError(err))
	}
	return m, nil
}

// GetMessageForUpdate reads a message and locks its row until the transaction ends
func (q *queries) GetMessageForUpdate(ctx context.Context, messageID int64) (*domain.Message, error) {
	m, err := scanMessage(q.db.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1 FOR UPDATE`, messageID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock message %d: %w", messageID, mapError(err))
	}
	return m, nil
}

// InsertMessage persists a new, published message
func (q *queries) InsertMessage(ctx context.Context, message *domain.Message) error {
	var (
		contentType *string
		fileName    *string
		fileSize    *int64
		width       *int
		height      *int
		updatedAt   *time.Time
	)
	if a := message.Attachment; a != nil {
		contentType = &a.ContentType
		fileName = &a.FileName
		fileSize = &a.FileSize
		width = a.Width
		height = a.Height
		if a.UpdatedAt.IsZero() {
			now := time.Now().UTC()
			a.UpdatedAt = now
		}
		updatedAt = &a.UpdatedAt
	}

	query := `
		INSERT INTO messages (
			conversation_id, user_id, message, message_html, system_message,
			attachment_content_type, attachment_file_name, attachment_file_size,
			attachment_width, attachment_height, attachment_updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	err := q.db.QueryRow(ctx, query,
		message.ConversationID,
		message.UserID,
		message.Body,
		message.BodyHTML,
		message.SystemMessage,
		contentType,
		fileName,
		fileSize,
		width,
		height,
		updatedAt,
	).Scan(&message.ID, &message.CreatedAt, &message.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", mapError(err))
	}
	return nil
}

// messageFilter builds the WHERE clause for a MessageQuery. Only fixed fragments are
// concatenated; values are always bound as arguments.
func messageFilter(query domain.MessageQuery) (string, []any) {
	conds := []string{"conversation_id = $1"}
	if !query.IncludeHidden {
		conds = append(conds, "abuse_report_id IS NULL")
	}
	switch query.Scope {
	case domain.ScopeWithFile:
		conds = append(conds, "attachment_content_type LIKE 'application%'")
	case domain.ScopeWithImage:
		conds = append(conds, "attachment_content_type LIKE 'image%'")
	case domain.ScopeSystem:
		conds = append(conds, "system_message = true")
	case domain.ScopeNonSystem:
		conds = append(conds, "system_message = false")
	}
	return strings.Join(conds, " AND "), []any{query.ConversationID}
}

// ListMessages returns one page of a conversation, newest first
func (q *queries) ListMessages(ctx context.Context, query domain.MessageQuery) ([]*domain.Message, error) {
	where, args := messageFilter(query)
	sql := `SELECT ` + messageColumns + ` FROM messages WHERE ` + where +
		` ORDER BY created_at DESC, id DESC`
	if query.Limit > 0 {
		args = append(args, query.Limit, query.Offset)
		sql += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*domain.Message, 0, query.Limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// CountMessages counts the messages matching query, ignoring paging
func (q *queries) CountMessages(ctx context.Context, query domain.MessageQuery) (int64, error) {
	where, args := messageFilter(query)
	var n int64
	if err := q.db.QueryRow(ctx, `SELECT count(*) FROM messages WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// HideMessage sets the triggering report on a published message.
// It reports false when the message was already hidden.
func (q *queries) HideMessage(ctx context.Context, messageID, abuseReportID int64) (bool, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE messages SET abuse_report_id = $2, updated_at = now()
		WHERE id = $1 AND abuse_report_id IS NULL
	`, messageID, abuseReportID)
	if err != nil {
		return false, fmt.Errorf("failed to hide message: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
