package cockroach

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"echowaves-backend/internal/domain"
	"echowaves-backend/internal/repository"
)

var _ repository.Store = (*Store)(nil)

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))
	assert.ErrorIs(t, mapError(pgx.ErrNoRows), repository.ErrNotFound)
	assert.ErrorIs(t, mapError(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505"})), repository.ErrConflict)
	assert.ErrorIs(t, mapError(&pgconn.PgError{Code: "23503"}), repository.ErrNotFound)

	other := fmt.Errorf("boom")
	assert.Equal(t, other, mapError(other))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})))
	assert.False(t, isRetryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isRetryable(fmt.Errorf("plain")))
}

func TestMessageFilter(t *testing.T) {
	where, args := messageFilter(domain.MessageQuery{ConversationID: 9, Scope: domain.ScopeWithImage})
	assert.Equal(t, "conversation_id = $1 AND abuse_report_id IS NULL AND attachment_content_type LIKE 'image%'", where)
	assert.Equal(t, []any{int64(9)}, args)

	where, _ = messageFilter(domain.MessageQuery{ConversationID: 9, Scope: domain.ScopeSystem, IncludeHidden: true})
	assert.Equal(t, "conversation_id = $1 AND system_message = true", where)
}

func TestSchemaEmbedded(t *testing.T) {
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS abuse_reports")
	assert.Contains(t, schema, "UNIQUE (message_id, user_id)")
	assert.Contains(t, schema, "UNIQUE (user_id, conversation_id)")
}
