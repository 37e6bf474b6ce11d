package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/abhishek622/evalengine/pkg/model"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `
	id, application_id, status, progress, total_score, completed,
	started_at, last_activity_at, finished_at, snapshot`

// CreateSession inserts a new session. A second session for the same
// application fails with ErrDuplicate.
func (r *Repository) CreateSession(ctx context.Context, s model.Session) error {
	snapshot, err := model.EncodeSessionSnapshot(s.Snapshot)
	if err != nil {
		return err
	}
	const q = `INSERT INTO sessions (` + sessionColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = r.db.Exec(ctx, q,
		s.ID, s.ApplicationID, s.Status, s.Progress, s.TotalScore, s.Completed,
		s.StartedAt, s.LastActivityAt, s.FinishedAt, snapshot,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("session for application %d: %w", s.ApplicationID, ErrDuplicate)
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *Repository) SaveSession(ctx context.Context, s model.Session) error {
	snapshot, err := model.EncodeSessionSnapshot(s.Snapshot)
	if err != nil {
		return err
	}
	const q = `
UPDATE sessions SET
	status = $1, progress = $2, total_score = $3, completed = $4,
	last_activity_at = $5, finished_at = $6, snapshot = $7
WHERE id = $8
`
	tag, err := r.db.Exec(ctx, q,
		s.Status, s.Progress, s.TotalScore, s.Completed,
		s.LastActivityAt, s.FinishedAt, snapshot, s.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", s.ID, ErrNotFound)
	}
	return nil
}

func (r *Repository) FindSession(ctx context.Context, id string) (model.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	s, err := scanSession(r.db.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s, err
}

func (r *Repository) FindSessionByApplication(ctx context.Context, applicationID int64) (model.Session, error) {
	const q = `SELECT ` + sessionColumns + ` FROM sessions WHERE application_id = $1`
	s, err := scanSession(r.db.QueryRow(ctx, q, applicationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Session{}, fmt.Errorf("session for application %d: %w", applicationID, ErrNotFound)
	}
	return s, err
}

func scanSession(row pgx.Row) (model.Session, error) {
	var (
		s        model.Session
		snapshot []byte
	)
	err := row.Scan(
		&s.ID, &s.ApplicationID, &s.Status, &s.Progress, &s.TotalScore, &s.Completed,
		&s.StartedAt, &s.LastActivityAt, &s.FinishedAt, &snapshot,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Session{}, err
		}
		return model.Session{}, fmt.Errorf("scan session: %w", err)
	}
	s.Snapshot, err = model.DecodeSessionSnapshot(snapshot)
	if err != nil {
		return model.Session{}, fmt.Errorf("session %s: %w: %v", s.ID, ErrMalformedSnapshot, err)
	}
	return s, nil
}
