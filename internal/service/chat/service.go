// Package chat admits messages into conversations and serves them back.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"echowaves-backend/internal/domain"
	"echowaves-backend/internal/repository"
	"echowaves-backend/internal/service/conversation"
	"echowaves-backend/internal/service/ledger"
	"echowaves-backend/internal/service/subscription"
	"echowaves-backend/pkg/config"
	apperrors "echowaves-backend/pkg/errors"
	"echowaves-backend/pkg/logger"
	"echowaves-backend/pkg/metrics"
	"echowaves-backend/pkg/pagination"
	"echowaves-backend/pkg/sanitize"
)

// Formatter renders a raw body into HTML
type Formatter interface {
	Format(body string) string
}

// FormatterFunc adapts a function to Formatter
type FormatterFunc func(body string) string

func (f FormatterFunc) Format(body string) string { return f(body) }

// Counter is the counter ledger
type Counter interface {
	IncrementOnAdmit(ctx context.Context, q ledger.CounterStore, conversationID, userID int64) error
}

// Tracker keeps the author's subscription current
type Tracker interface {
	EnsureSubscribedAndMarkRead(ctx context.Context, q subscription.TrackerStore, userID, conversationID int64, asOf time.Time) error
}

// AttachmentPolicy validates attachment metadata
type AttachmentPolicy interface {
	Check(a *domain.Attachment) error
}

// Broadcaster queues a committed message for fan-out
type Broadcaster interface {
	Enqueue(messageID int64) bool
}

// Service handles message admission and listing
type Service struct {
	store       repository.Store
	counter     Counter
	tracker     Tracker
	policy      AttachmentPolicy
	broadcaster Broadcaster
	formatter   Formatter
	pageSize    int
}

// Option configures a Service
type Option func(*Service)

// WithFormatter replaces the default HTML formatter
func WithFormatter(f Formatter) Option {
	return func(s *Service) {
		s.formatter = f
	}
}

// NewService creates a new chat service. broadcaster may be nil to disable fan-out.
func NewService(
	store repository.Store,
	counter Counter,
	tracker Tracker,
	policy AttachmentPolicy,
	broadcaster Broadcaster,
	cfg config.MessageConfig,
	opts ...Option,
) *Service {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = config.DefaultPageSize
	}
	s := &Service{
		store:       store,
		counter:     counter,
		tracker:     tracker,
		policy:      policy,
		broadcaster: broadcaster,
		formatter:   FormatterFunc(sanitize.FormatMessageHTML),
		pageSize:    pageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AdmitInput contains a message submission
type AdmitInput struct {
	ConversationID int64
	UserID         int64
	Body           string
	Attachment     *domain.Attachment
	SystemMessage  bool
	// Honeypot is a form field humans never fill in
	Honeypot string
}

// Admit validates and stores a message, updates counters and the author's
// subscription in the same transaction, then queues the broadcast.
func (s *Service) Admit(ctx context.Context, input *AdmitInput) (*domain.Message, error) {
	start := time.Now()
	defer func() {
		metrics.ChatAdmissionDuration.Observe(time.Since(start).Seconds())
	}()

	if err := s.validate(input); err != nil {
		return nil, s.reject(err)
	}
	if err := s.checkReferences(ctx, input.ConversationID, input.UserID); err != nil {
		return nil, s.reject(err)
	}

	var msg *domain.Message
	err := s.store.WithTx(ctx, func(q repository.Queries) error {
		msg = &domain.Message{
			ConversationID: input.ConversationID,
			UserID:         input.UserID,
			Body:           input.Body,
			BodyHTML:       s.formatter.Format(input.Body),
			SystemMessage:  input.SystemMessage,
			Attachment:     storedAttachment(input.Attachment),
		}
		if err := q.InsertMessage(ctx, msg); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		if err := s.counter.IncrementOnAdmit(ctx, q, msg.ConversationID, msg.UserID); err != nil {
			return err
		}
		return s.tracker.EnsureSubscribedAndMarkRead(ctx, q, msg.UserID, msg.ConversationID, msg.CreatedAt)
	})
	if err != nil {
		logger.FromContext(ctx).Error("Message admission failed",
			zap.Int64("conversation_id", input.ConversationID),
			zap.Int64("user_id", input.UserID),
			zap.Error(err))
		return nil, s.reject(apperrors.StorageError(err))
	}

	metrics.ChatMessageAdmittedTotal.WithLabelValues(strconv.FormatBool(msg.HasAttachment())).Inc()
	logger.FromContext(ctx).Debug("Message admitted",
		zap.Int64("message_id", msg.ID),
		zap.Int64("conversation_id", msg.ConversationID))

	if s.broadcaster != nil {
		s.broadcaster.Enqueue(msg.ID)
	}

	return msg, nil
}

func (s *Service) validate(input *AdmitInput) error {
	if sanitize.IsBlank(input.Body) {
		return apperrors.ValidationError("message", "Message can't be blank")
	}
	if input.Honeypot != "" {
		return apperrors.ValidationError("something", "Message rejected")
	}
	if input.Attachment != nil {
		if s.policy != nil {
			if err := s.policy.Check(input.Attachment); err != nil {
				return err
			}
		}
	}
	return nil
}

// storedAttachment returns a copy of a with a safe file name
func storedAttachment(a *domain.Attachment) *domain.Attachment {
	if a == nil {
		return nil
	}
	stored := *a
	stored.FileName = sanitize.SanitizeFilename(stored.FileName)
	return &stored
}

func (s *Service) checkReferences(ctx context.Context, conversationID, userID int64) error {
	if _, err := s.store.GetConversation(ctx, conversationID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ReferenceNotFoundError("conversation")
		}
		return apperrors.StorageError(err)
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ReferenceNotFoundError("user")
		}
		return apperrors.StorageError(err)
	}
	return nil
}

func (s *Service) reject(err error) error {
	reason := "storage"
	switch apperrors.GetAppError(err).Code {
	case apperrors.ErrCodeValidation:
		reason = "validation"
	case apperrors.ErrCodeAttachmentRejected:
		reason = "attachment"
	case apperrors.ErrCodeReferenceNotFound:
		reason = "reference"
	}
	metrics.ChatMessageRejectedTotal.WithLabelValues(reason).Inc()
	return err
}

// ListInput contains listing parameters
type ListInput struct {
	ConversationID int64
	Viewer         domain.Viewer
	Page           string
	Scope          string
	IncludeHidden  bool
}

// List returns one page of a conversation's messages, newest first. Hidden
// messages are included only for the owner or an admin who asks for them.
// ConversationID must come from a conversation the viewer already resolved.
func (s *Service) List(ctx context.Context, input *ListInput) (*pagination.PaginationResponse, error) {
	params, err := pagination.ParsePage(input.Page, s.pageSize)
	if err != nil {
		return nil, apperrors.ValidationError("page", err.Error())
	}
	scope, err := domain.ParseMessageScope(input.Scope)
	if err != nil {
		return nil, apperrors.ValidationError("scope", err.Error())
	}

	conv, err := s.conversation(ctx, input.ConversationID)
	if err != nil {
		return nil, err
	}
	if input.IncludeHidden && !conv.CanAudit(input.Viewer) {
		return nil, apperrors.ForbiddenError("Only the conversation owner can view hidden messages")
	}

	query := domain.MessageQuery{
		ConversationID: conv.ID,
		Scope:          scope,
		IncludeHidden:  input.IncludeHidden,
		Limit:          params.Limit,
		Offset:         params.Offset,
	}
	messages, err := s.store.ListMessages(ctx, query)
	if err != nil {
		return nil, apperrors.StorageError(err)
	}
	total, err := s.store.CountMessages(ctx, query)
	if err != nil {
		return nil, apperrors.StorageError(err)
	}
	if messages == nil {
		messages = []*domain.Message{}
	}

	return pagination.BuildPaginationResponse(params, total, messages), nil
}

// Get returns one message. Messages of a private conversation the viewer
// cannot reach, and hidden messages outside the audit view, are not found.
func (s *Service) Get(ctx context.Context, messageID int64, viewer domain.Viewer) (*domain.Message, error) {
	msg, conv, err := s.reachable(ctx, messageID, viewer)
	if err != nil {
		return nil, err
	}
	if !msg.Published() && !conv.CanAudit(viewer) {
		return nil, apperrors.NotFoundError("message")
	}
	return msg, nil
}

// CheckAccess reports NOT_FOUND when viewer cannot reach the message's
// conversation. Hidden messages pass so they can still be reported.
func (s *Service) CheckAccess(ctx context.Context, messageID int64, viewer domain.Viewer) error {
	_, _, err := s.reachable(ctx, messageID, viewer)
	return err
}

func (s *Service) reachable(ctx context.Context, messageID int64, viewer domain.Viewer) (*domain.Message, *domain.Conversation, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, apperrors.NotFoundError("message")
		}
		return nil, nil, apperrors.StorageError(err)
	}
	conv, err := s.conversation(ctx, msg.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	visible, err := conversation.CanView(ctx, s.store, conv, viewer)
	if err != nil {
		return nil, nil, apperrors.StorageError(err)
	}
	if !visible {
		return nil, nil, apperrors.NotFoundError("message")
	}
	return msg, conv, nil
}

func (s *Service) conversation(ctx context.Context, conversationID int64) (*domain.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFoundError("conversation")
		}
		return nil, apperrors.StorageError(err)
	}
	return conv, nil
}
