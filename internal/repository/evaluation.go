package repository

import (
	"context"
	"fmt"

	"github.com/abhishek622/evalengine/pkg/model"
)

func (r *Repository) CreateEvaluation(ctx context.Context, e *model.Evaluation) error {
	const q = `
INSERT INTO evaluations (
	application_id, question_id, structure_clarity, technical_mastery, relevance,
	communication, percentage, answer, feedback, evaluated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id
`
	row := r.db.QueryRow(ctx, q,
		e.ApplicationID, e.QuestionID, e.StructureClarity, e.TechnicalMastery, e.Relevance,
		e.Communication, e.Percentage, e.Answer, e.Feedback, e.EvaluatedAt,
	)
	if err := row.Scan(&e.ID); err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

func (r *Repository) FindEvaluationsByApplication(ctx context.Context, applicationID int64) ([]model.Evaluation, error) {
	const q = `
SELECT
	id, application_id, question_id, structure_clarity, technical_mastery, relevance,
	communication, percentage, answer, feedback, evaluated_at
FROM evaluations
WHERE application_id = $1
ORDER BY id ASC
`
	rows, err := r.db.Query(ctx, q, applicationID)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer rows.Close()

	out := []model.Evaluation{}
	for rows.Next() {
		var e model.Evaluation
		if err := rows.Scan(
			&e.ID, &e.ApplicationID, &e.QuestionID, &e.StructureClarity, &e.TechnicalMastery, &e.Relevance,
			&e.Communication, &e.Percentage, &e.Answer, &e.Feedback, &e.EvaluatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		out = append(out, e)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("rows error: %w", rows.Err())
	}
	return out, nil
}

func (r *Repository) CountEvaluationsByApplication(ctx context.Context, applicationID int64) (int, error) {
	var count int
	const q = `SELECT COUNT(1) FROM evaluations WHERE application_id = $1`
	if err := r.db.QueryRow(ctx, q, applicationID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count evaluations: %w", err)
	}
	return count, nil
}
