package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/abhishek622/evalengine/pkg/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate indicates a uniqueness constraint rejected a write.
	ErrDuplicate = errors.New("record already exists")
	// ErrMalformedSnapshot indicates a stored session snapshot could not be decoded.
	ErrMalformedSnapshot = errors.New("malformed session snapshot")
)

// Store is the record store read/write contract consumed by the engine.
// Reads return empty slices, never nil, when nothing matches.
type Store interface {
	FindApplication(ctx context.Context, id int64) (model.Application, error)
	FindQuestionsByApplication(ctx context.Context, applicationID int64) ([]model.Question, error)
	FindEvaluationsByApplication(ctx context.Context, applicationID int64) ([]model.Evaluation, error)
	CountQuestionsByApplication(ctx context.Context, applicationID int64) (int, error)
	CountEvaluationsByApplication(ctx context.Context, applicationID int64) (int, error)
	CreateEvaluation(ctx context.Context, e *model.Evaluation) error
	ListApplicationIDs(ctx context.Context, limit int) ([]int64, error)
	UpdateApplicationState(ctx context.Context, id int64, state model.ApplicationState) error
	AttachSession(ctx context.Context, applicationID int64, sessionID string) error

	FindSession(ctx context.Context, id string) (model.Session, error)
	FindSessionByApplication(ctx context.Context, applicationID int64) (model.Session, error)
	CreateSession(ctx context.Context, s model.Session) error
	SaveSession(ctx context.Context, s model.Session) error
}

// Transactor runs fn against a Store bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(Store) error) error
}

// Seeder inserts records. It is used by local tooling and tests only.
type Seeder interface {
	CreateApplication(ctx context.Context, app *model.Application) error
	CreateQuestions(ctx context.Context, questions []model.Question) error
	CreateEvaluation(ctx context.Context, e *model.Evaluation) error
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Repository is the PostgreSQL record store.
type Repository struct {
	pool *pgxpool.Pool
	db   dbtx
}

var (
	_ Store      = (*Repository)(nil)
	_ Transactor = (*Repository)(nil)
	_ Seeder     = (*Repository)(nil)
)

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, db: pool}
}

// WithinTx runs fn inside a REPEATABLE READ transaction so every read in fn
// observes the same snapshot. fn may run more than once when the transaction
// loses a serialization conflict, so it must not keep side effects outside the
// store between attempts.
func (r *Repository) WithinTx(ctx context.Context, fn func(Store) error) error {
	if r.pool == nil {
		// already bound to a transaction
		return fn(r)
	}
	return r.execTx(ctx, func(tx pgx.Tx) error {
		return fn(&Repository{db: tx})
	})
}

// maxTxAttempts bounds how often a transaction is rerun after a
// serialization failure.
const maxTxAttempts = 5

// execTx runs fn in a REPEATABLE READ transaction. Concurrent writers to the
// same row abort with a serialization failure; fn is rerun from the start in a
// fresh transaction in that case.
func (r *Repository) execTx(ctx context.Context, fn func(pgx.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = r.runTx(ctx, fn)
		if !isRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return fmt.Errorf("tx retries exhausted: %w", err)
}

func (r *Repository) runTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// PostgreSQL unique_violation
const uniqueViolation = "23505"

// PostgreSQL serialization_failure and deadlock_detected
const (
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == serializationFailure || pgErr.Code == deadlockDetected
}
