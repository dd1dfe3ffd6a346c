// Package ledger maintains the denormalized message and conversation counters.
package ledger

import (
	"context"
	"fmt"
)

// CounterStore is the subset of repository.Queries the ledger writes through.
// It is always a transaction handle owned by the caller.
type CounterStore interface {
	IncrementConversationMessages(ctx context.Context, conversationID int64) error
	IncrementUserMessages(ctx context.Context, userID int64) error
	IncrementUserConversations(ctx context.Context, userID int64) error
}

// Ledger increments counters atomically inside the caller's transaction.
// Counters only grow: nothing in this service deletes messages or conversations.
type Ledger struct{}

// New creates a Ledger
func New() *Ledger {
	return &Ledger{}
}

// IncrementOnAdmit counts an admitted message against its conversation and author
func (l *Ledger) IncrementOnAdmit(ctx context.Context, q CounterStore, conversationID, userID int64) error {
	if err := q.IncrementConversationMessages(ctx, conversationID); err != nil {
		return fmt.Errorf("failed to count message for conversation %d: %w", conversationID, err)
	}
	if err := q.IncrementUserMessages(ctx, userID); err != nil {
		return fmt.Errorf("failed to count message for user %d: %w", userID, err)
	}
	return nil
}

// IncrementOnConversationCreate counts a new conversation against its owner
func (l *Ledger) IncrementOnConversationCreate(ctx context.Context, q CounterStore, ownerID int64) error {
	if err := q.IncrementUserConversations(ctx, ownerID); err != nil {
		return fmt.Errorf("failed to count conversation for user %d: %w", ownerID, err)
	}
	return nil
}
