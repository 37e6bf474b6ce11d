package repository

import (
	"context"
	"fmt"

	"github.com/abhishek622/evalengine/pkg/model"
	"github.com/jackc/pgx/v5"
)

func (r *Repository) CreateQuestions(ctx context.Context, questions []model.Question) error {
	if len(questions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const q = `
INSERT INTO questions (application_id, ordinal, text, "type", weight)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at
`
	for _, question := range questions {
		batch.Queue(q, question.ApplicationID, question.Ordinal, question.Text, question.Type, question.Weight)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	for i := range questions {
		if err := br.QueryRow().Scan(&questions[i].ID, &questions[i].CreatedAt); err != nil {
			return fmt.Errorf("batch insert question %d: %w", i, err)
		}
	}
	return nil
}

func (r *Repository) FindQuestionsByApplication(ctx context.Context, applicationID int64) ([]model.Question, error) {
	const q = `
SELECT id, application_id, ordinal, text, "type", weight, created_at
FROM questions
WHERE application_id = $1
ORDER BY ordinal ASC, id ASC
`
	rows, err := r.db.Query(ctx, q, applicationID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	out := []model.Question{}
	for rows.Next() {
		var qs model.Question
		if err := rows.Scan(&qs.ID, &qs.ApplicationID, &qs.Ordinal, &qs.Text, &qs.Type, &qs.Weight, &qs.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, qs)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("rows error: %w", rows.Err())
	}
	return out, nil
}

func (r *Repository) CountQuestionsByApplication(ctx context.Context, applicationID int64) (int, error) {
	var count int
	const q = `SELECT COUNT(1) FROM questions WHERE application_id = $1`
	if err := r.db.QueryRow(ctx, q, applicationID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}
	return count, nil
}
