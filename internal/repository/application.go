package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/abhishek622/evalengine/pkg/model"
	"github.com/jackc/pgx/v5"
)

func (r *Repository) CreateApplication(ctx context.Context, app *model.Application) error {
	const q = `
INSERT INTO applications (candidate_id, posting_id, state, questions_generated)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at, updated_at
`
	if app.State == "" {
		app.State = model.ApplicationStatePending
	}
	row := r.db.QueryRow(ctx, q, app.CandidateID, app.PostingID, app.State, app.QuestionsGenerated)
	if err := row.Scan(&app.ID, &app.CreatedAt, &app.UpdatedAt); err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (r *Repository) FindApplication(ctx context.Context, id int64) (model.Application, error) {
	const q = `
SELECT id, candidate_id, posting_id, state, questions_generated, session_id, created_at, updated_at
FROM applications WHERE id = $1
`
	var a model.Application
	err := r.db.QueryRow(ctx, q, id).Scan(
		&a.ID, &a.CandidateID, &a.PostingID, &a.State, &a.QuestionsGenerated,
		&a.SessionID, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Application{}, fmt.Errorf("application %d: %w", id, ErrNotFound)
		}
		return model.Application{}, fmt.Errorf("scan application: %w", err)
	}
	return a, nil
}

// ListApplicationIDs returns up to limit application ids, newest first.
func (r *Repository) ListApplicationIDs(ctx context.Context, limit int) ([]int64, error) {
	const q = `SELECT id FROM applications ORDER BY created_at DESC, id DESC LIMIT $1`
	rows, err := r.db.Query(ctx, q, limit)
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
	if rows.Err() != nil {
		return nil, fmt.Errorf("rows error: %w", rows.Err())
	}
	return out, nil
}

func (r *Repository) UpdateApplicationState(ctx context.Context, id int64, state model.ApplicationState) error {
	const q = `UPDATE applications SET state = $1, updated_at = now() WHERE id = $2`
	tag, err := r.db.Exec(ctx, q, state, id)
	if err != nil {
		return fmt.Errorf("update application state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("application %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *Repository) AttachSession(ctx context.Context, applicationID int64, sessionID string) error {
	const q = `UPDATE applications SET session_id = $1, updated_at = now() WHERE id = $2`
	tag, err := r.db.Exec(ctx, q, sessionID, applicationID)
	if err != nil {
		return fmt.Errorf("attach session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("application %d: %w", applicationID, ErrNotFound)
	}
	return nil
}
