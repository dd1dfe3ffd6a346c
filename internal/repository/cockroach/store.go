package cockroach

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"echowaves-backend/internal/repository"
	"echowaves-backend/pkg/logger"
	"echowaves-backend/pkg/metrics"
)

//go:embed schema.sql
var schema string

const (
	sqlStateSerializationFailure = "40001"
	sqlStateUniqueViolation      = "23505"
	sqlStateForeignKeyViolation  = "23503"

	defaultMaxRetries = 5
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries implements repository.Queries on top of a pool or a transaction
type queries struct {
	db dbtx
}

// Store is the CockroachDB implementation of repository.Store
type Store struct {
	*queries
	pool       *pgxpool.Pool
	metrics    *metrics.Metrics
	maxRetries int
}

// NewStore creates a store backed by pool. m may be nil.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		queries:    &queries{db: pool},
		pool:       pool,
		metrics:    m,
		maxRetries: defaultMaxRetries,
	}
}

// Migrate creates the schema if it does not exist yet
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	logger.Info("Database schema is up to date")
	return nil
}

// WithTx runs fn in a serializable transaction, retrying it when CockroachDB
// reports a serialization conflict.
func (s *Store) WithTx(ctx context.Context, fn func(q repository.Queries) error) error {
	for attempt := 0; ; attempt++ {
		start := time.Now()
		err := s.runTx(ctx, fn)
		if s.metrics != nil {
			s.metrics.RecordDBQuery("tx", time.Since(start), err)
		}
		if err == nil {
			return nil
		}
		if !isRetryable(err) || attempt >= s.maxRetries || ctx.Err() != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.RecordTxRetry()
		}
		logger.Debug("Retrying transaction after serialization failure",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
}

func (s *Store) runTx(ctx context.Context, fn func(q repository.Queries) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(&queries{db: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	return hasSQLState(err, sqlStateSerializationFailure)
}

func hasSQLState(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// mapError converts driver errors to repository sentinels
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return repository.ErrNotFound
	case hasSQLState(err, sqlStateUniqueViolation):
		return fmt.Errorf("%w: %v", repository.ErrConflict, err)
	case hasSQLState(err, sqlStateForeignKeyViolation):
		return fmt.Errorf("%w: %v", repository.ErrNotFound, err)
	}
	return err
}

// expectOne turns an UPDATE that matched no rows into ErrNotFound
func expectOne(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
