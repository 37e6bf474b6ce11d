package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/abhishek622/evalengine/internal/repository"
	"github.com/abhishek622/evalengine/pkg/model"
)

func (s *Store) CreateApplication(ctx context.Context, app *model.Application) error {
	if app.State == "" {
		app.State = model.ApplicationStatePending
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = app.CreatedAt

	res, err := s.q.ExecContext(ctx, `
INSERT INTO applications (candidate_id, posting_id, state, questions_generated, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		app.CandidateID, app.PostingID, app.State, app.QuestionsGenerated,
		toMillis(app.CreatedAt), toMillis(app.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	if app.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("application id: %w", err)
	}
	return nil
}

func (s *Store) FindApplication(ctx context.Context, id int64) (model.Application, error) {
	var (
		a                    model.Application
		sessionID            sql.NullString
		createdAt, updatedAt int64
	)
	err := s.q.QueryRowContext(ctx, `
SELECT id, candidate_id, posting_id, state, questions_generated, session_id, created_at, updated_at
FROM applications WHERE id = ?`, id).Scan(
		&a.ID, &a.CandidateID, &a.PostingID, &a.State, &a.QuestionsGenerated,
		&sessionID, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Application{}, fmt.Errorf("application %d: %w", id, repository.ErrNotFound)
		}
		return model.Application{}, fmt.Errorf("scan application: %w", err)
	}
	if sessionID.Valid {
		a.SessionID = &sessionID.String
	}
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return a, nil
}

func (s *Store) ListApplicationIDs(ctx context.Context, limit int) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT id FROM applications ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query application ids: %w", err)
	}
	defer rows.Close()

	out := make([]int64, 0, limit)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan application id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) UpdateApplicationState(ctx context.Context, id int64, state model.ApplicationState) error {
	return s.updateApplication(ctx, id, `UPDATE applications SET state = ?, updated_at = ? WHERE id = ?`,
		state, toMillis(time.Now()), id)
}

func (s *Store) AttachSession(ctx context.Context, applicationID int64, sessionID string) error {
	return s.updateApplication(ctx, applicationID, `UPDATE applications SET session_id = ?, updated_at = ? WHERE id = ?`,
		sessionID, toMillis(time.Now()), applicationID)
}

func (s *Store) updateApplication(ctx context.Context, id int64, query string, args ...any) error {
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("application %d: %w", id, repository.ErrNotFound)
	}
	return nil
}

func (s *Store) CreateQuestions(ctx context.Context, questions []model.Question) error {
	for i := range questions {
		q := &questions[i]
		if q.CreatedAt.IsZero() {
			q.CreatedAt = time.Now().UTC()
		}
		res, err := s.q.ExecContext(ctx, `
INSERT INTO questions (application_id, ordinal, text, type, weight, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
			q.ApplicationID, q.Ordinal, q.Text, q.Type, q.Weight, toMillis(q.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", i, err)
		}
		if q.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("question id: %w", err)
		}
	}
	return nil
}

func (s *Store) FindQuestionsByApplication(ctx context.Context, applicationID int64) ([]model.Question, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT id, application_id, ordinal, text, type, weight, created_at
FROM questions WHERE application_id = ?
ORDER BY ordinal ASC, id ASC`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	out := []model.Question{}
	for rows.Next() {
		var (
			q         model.Question
			createdAt int64
		)
		if err := rows.Scan(&q.ID, &q.ApplicationID, &q.Ordinal, &q.Text, &q.Type, &q.Weight, &createdAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.CreatedAt = fromMillis(createdAt)
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) CountQuestionsByApplication(ctx context.Context, applicationID int64) (int, error) {
	return s.count(ctx, `SELECT COUNT(1) FROM questions WHERE application_id = ?`, applicationID)
}

func (s *Store) CreateEvaluation(ctx context.Context, e *model.Evaluation) error {
	if e.EvaluatedAt.IsZero() {
		e.EvaluatedAt = time.Now().UTC()
	}
	res, err := s.q.ExecContext(ctx, `
INSERT INTO evaluations (
	application_id, question_id, structure_clarity, technical_mastery, relevance,
	communication, percentage, answer, feedback, evaluated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ApplicationID, e.QuestionID, e.StructureClarity, e.TechnicalMastery, e.Relevance,
		e.Communication, e.Percentage, e.Answer, e.Feedback, toMillis(e.EvaluatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("evaluation id: %w", err)
	}
	return nil
}

func (s *Store) FindEvaluationsByApplication(ctx context.Context, applicationID int64) ([]model.Evaluation, error) {
	rows, err := s.q.QueryContext(ctx, `
SELECT
	id, application_id, question_id, structure_clarity, technical_mastery, relevance,
	communication, percentage, answer, feedback, evaluated_at
FROM evaluations WHERE application_id = ?
ORDER BY id ASC`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	out := []model.Evaluation{}
	for rows.Next() {
		var (
			e           model.Evaluation
			evaluatedAt int64
		)
		if err := rows.Scan(
			&e.ID, &e.ApplicationID, &e.QuestionID, &e.StructureClarity, &e.TechnicalMastery, &e.Relevance,
			&e.Communication, &e.Percentage, &e.Answer, &e.Feedback, &evaluatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		e.EvaluatedAt = fromMillis(evaluatedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CountEvaluationsByApplication(ctx context.Context, applicationID int64) (int, error) {
	return s.count(ctx, `SELECT COUNT(1) FROM evaluations WHERE application_id = ?`, applicationID)
}

func (s *Store) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}
