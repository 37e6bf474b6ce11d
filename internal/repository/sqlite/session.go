package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/abhishek622/evalengine/internal/repository"
	"github.com/abhishek622/evalengine/pkg/model"
)

const sessionColumns = `id, application_id, status, progress, total_score, completed,
	started_at, last_activity_at, finished_at, snapshot`

func (s *Store) CreateSession(ctx context.Context, sess model.Session) error {
	snapshot, err := model.EncodeSessionSnapshot(sess.Snapshot)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ApplicationID, sess.Status, sess.Progress, sess.TotalScore, sess.Completed,
		toMillis(sess.StartedAt), toMillis(sess.LastActivityAt), toNullMillis(sess.FinishedAt), string(snapshot),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("session for application %d: %w", sess.ApplicationID, repository.ErrDuplicate)
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) SaveSession(ctx context.Context, sess model.Session) error {
	snapshot, err := model.EncodeSessionSnapshot(sess.Snapshot)
	if err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `
UPDATE sessions SET
	status = ?, progress = ?, total_score = ?, completed = ?,
	last_activity_at = ?, finished_at = ?, snapshot = ?
WHERE id = ?`,
		sess.Status, sess.Progress, sess.TotalScore, sess.Completed,
		toMillis(sess.LastActivityAt), toNullMillis(sess.FinishedAt), string(snapshot), sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", sess.ID, repository.ErrNotFound)
	}
	return nil
}

func (s *Store) FindSession(ctx context.Context, id string) (model.Session, error) {
	sess, err := scanSession(s.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, fmt.Errorf("session %s: %w", id, repository.ErrNotFound)
	}
	return sess, err
}

func (s *Store) FindSessionByApplication(ctx context.Context, applicationID int64) (model.Session, error) {
	sess, err := scanSession(s.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE application_id = ?`, applicationID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, fmt.Errorf("session for application %d: %w", applicationID, repository.ErrNotFound)
	}
	return sess, err
}

// CorruptSnapshot overwrites a session's stored snapshot. Tests use it to
// exercise decode failures.
func (s *Store) CorruptSnapshot(ctx context.Context, id, raw string) error {
	_, err := s.q.ExecContext(ctx, `UPDATE sessions SET snapshot = ? WHERE id = ?`, raw, id)
	return err
}

func scanSession(row *sql.Row) (model.Session, error) {
	var (
		sess                      model.Session
		startedAt, lastActivityAt int64
		finishedAt                sql.NullInt64
		snapshot                  string
	)
	err := row.Scan(
		&sess.ID, &sess.ApplicationID, &sess.Status, &sess.Progress, &sess.TotalScore, &sess.Completed,
		&startedAt, &lastActivityAt, &finishedAt, &snapshot,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Session{}, err
		}
		return model.Session{}, fmt.Errorf("scan session: %w", err)
	}
	sess.StartedAt = fromMillis(startedAt)
	sess.LastActivityAt = fromMillis(lastActivityAt)
	sess.FinishedAt = fromNullMillis(finishedAt)

	sess.Snapshot, err = model.DecodeSessionSnapshot([]byte(snapshot))
	if err != nil {
		return model.Session{}, fmt.Errorf("session %s: %w: %v", sess.ID, repository.ErrMalformedSnapshot, err)
	}
	return sess, nil
}
