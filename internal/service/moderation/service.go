// Package moderation hides messages that collect enough abuse reports.
package moderation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"echowaves-backend/internal/domain"
	"echowaves-backend/internal/repository"
	"echowaves-backend/pkg/config"
	apperrors "echowaves-backend/pkg/errors"
	"echowaves-backend/pkg/logger"
	"echowaves-backend/pkg/metrics"
)

const (
	triggerOwner     = "owner"
	triggerThreshold = "threshold"
)

// Store runs the report bookkeeping in one transaction
type Store interface {
	WithTx(ctx context.Context, fn func(q repository.Queries) error) error
}

// Retractor announces that a previously broadcast message was hidden
type Retractor interface {
	EnqueueRetraction(messageID, conversationID int64) bool
}

// Service implements abuse reporting. A message moves from published to hidden
// once and never back.
type Service struct {
	store     Store
	threshold int64
	retractor Retractor
}

// NewService creates a moderation service. retractor may be nil, and is ignored
// when cfg.BroadcastRetractions is off.
func NewService(store Store, cfg config.ModerationConfig, retractor Retractor) *Service {
	threshold := cfg.AbuseThreshold
	if threshold <= 0 {
		threshold = config.DefaultAbuseThreshold
	}
	if !cfg.BroadcastRetractions {
		retractor = nil
	}
	return &Service{
		store:     store,
		threshold: int64(threshold),
		retractor: retractor,
	}
}

// ReportAbuse records that reporterID flags messageID and hides the message when
// the reporter owns the conversation or the number of distinct reporters exceeds
// the threshold. Reporting the same message twice is a silent no-op.
func (s *Service) ReportAbuse(ctx context.Context, messageID, reporterID int64) (*domain.ModerationOutcome, error) {
	var (
		outcome        domain.ModerationOutcome
		conversationID int64
		trigger        string
		alreadyHidden  bool
	)

	err := s.store.WithTx(ctx, func(q repository.Queries) error {
		// reset: the body may run again on a retried transaction
		outcome = domain.ModerationOutcome{MessageID: messageID, Visibility: domain.VisibilityPublished}
		trigger = ""
		alreadyHidden = false

		msg, err := q.GetMessageForUpdate(ctx, messageID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.ReferenceNotFoundError("message")
			}
			return fmt.Errorf("failed to load message: %w", err)
		}
		conversationID = msg.ConversationID

		if _, err := q.GetUser(ctx, reporterID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.ReferenceNotFoundError("user")
			}
			return fmt.Errorf("failed to load reporter: %w", err)
		}

		if !msg.Published() {
			alreadyHidden = true
			outcome.Visibility = domain.VisibilityHidden
			outcome.ReportCount, err = q.CountAbuseReports(ctx, messageID)
			return err
		}

		report, created, err := q.CreateAbuseReport(ctx, messageID, reporterID)
		if err != nil {
			return fmt.Errorf("failed to record abuse report: %w", err)
		}
		outcome.ReportCreated = created

		count, err := q.CountAbuseReports(ctx, messageID)
		if err != nil {
			return fmt.Errorf("failed to count abuse reports: %w", err)
		}
		outcome.ReportCount = count

		conv, err := q.GetConversation(ctx, msg.ConversationID)
		if err != nil {
			return fmt.Errorf("failed to load conversation: %w", err)
		}

		switch {
		case conv.IsOwnedBy(reporterID):
			trigger = triggerOwner
		case count > s.threshold:
			trigger = triggerThreshold
		default:
			return nil
		}

		hidden, err := q.HideMessage(ctx, messageID, report.ID)
		if err != nil {
			return fmt.Errorf("failed to hide message: %w", err)
		}
		outcome.Visibility = domain.VisibilityHidden
		outcome.Transitioned = hidden
		return nil
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		logger.FromContext(ctx).Error("Abuse report failed",
			zap.Int64("message_id", messageID),
			zap.Int64("user_id", reporterID),
			zap.Error(err))
		return nil, apperrors.StorageError(err)
	}

	s.record(ctx, &outcome, alreadyHidden, trigger, reporterID)

	if outcome.Transitioned && s.retractor != nil {
		if !s.retractor.EnqueueRetraction(messageID, conversationID) {
			logger.Warn("Retraction dropped, broadcast queue full", zap.Int64("message_id", messageID))
		}
	}

	return &outcome, nil
}

func (s *Service) record(ctx context.Context, outcome *domain.ModerationOutcome, alreadyHidden bool, trigger string, reporterID int64) {
	switch {
	case alreadyHidden:
		metrics.ChatAbuseReportsTotal.WithLabelValues("already_hidden").Inc()
	case outcome.ReportCreated:
		metrics.ChatAbuseReportsTotal.WithLabelValues("created").Inc()
	default:
		metrics.ChatAbuseReportsTotal.WithLabelValues("duplicate").Inc()
	}

	if !outcome.Transitioned {
		return
	}
	metrics.ChatMessagesHiddenTotal.WithLabelValues(trigger).Inc()
	logger.FromContext(ctx).Info("Message hidden",
		zap.Int64("message_id", outcome.MessageID),
		zap.Int64("reporter_id", reporterID),
		zap.String("trigger", trigger),
		zap.Int64("report_count", outcome.ReportCount))
}
