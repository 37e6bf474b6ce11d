package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/abhishek622/evalengine/internal/repository"
	"github.com/abhishek622/evalengine/pkg/model"
)

// Fixture describes demo applications to load into a store.
type Fixture struct {
	Applications []FixtureApplication `json:"applications"`
}

type FixtureApplication struct {
	CandidateID string              `json:"candidate_id"`
	PostingID   int64               `json:"posting_id"`
	Questions   []FixtureQuestion   `json:"questions"`
	Evaluations []FixtureEvaluation `json:"evaluations"`
}

type FixtureQuestion struct {
	Ordinal int     `json:"ordinal"`
	Text    string  `json:"text"`
	Type    string  `json:"type"`
	Weight  float64 `json:"weight"`
}

// FixtureEvaluation targets a question by ordinal. Without feedback the
// evaluation is stored incomplete.
type FixtureEvaluation struct {
	Ordinal     int             `json:"ordinal"`
	Answer      string          `json:"answer"`
	Feedback    *model.Feedback `json:"feedback"`
	EvaluatedAt time.Time       `json:"evaluated_at"`
}

type Result struct {
	Applications []int64
	Questions    int
	Evaluations  int
}

func LoadFixture(r io.Reader) (Fixture, error) {
	var f Fixture
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return Fixture{}, fmt.Errorf("decode fixture: %w", err)
	}
	return f, nil
}

// Apply inserts every application in the fixture with its questions and
// evaluations.
func Apply(ctx context.Context, s repository.Seeder, f Fixture, now time.Time) (Result, error) {
	var res Result
	for i, fa := range f.Applications {
		app := model.Application{
			CandidateID:        fa.CandidateID,
			PostingID:          fa.PostingID,
			QuestionsGenerated: len(fa.Questions) > 0,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := s.CreateApplication(ctx, &app); err != nil {
			return res, fmt.Errorf("application %d: %w", i, err)
		}
		res.Applications = append(res.Applications, app.ID)

		questions := make([]model.Question, len(fa.Questions))
		for j, fq := range fa.Questions {
			questions[j] = model.Question{
				ApplicationID: app.ID,
				Ordinal:       fq.Ordinal,
				Text:          fq.Text,
				Type:          fq.Type,
				Weight:        fq.Weight,
				CreatedAt:     now,
			}
		}
		if len(questions) > 0 {
			if err := s.CreateQuestions(ctx, questions); err != nil {
				return res, fmt.Errorf("application %d questions: %w", i, err)
			}
		}
		res.Questions += len(questions)

		byOrdinal := make(map[int]int64, len(questions))
		for _, q := range questions {
			byOrdinal[q.Ordinal] = q.ID
		}
		for _, fe := range fa.Evaluations {
			qid, ok := byOrdinal[fe.Ordinal]
			if !ok {
				return res, fmt.Errorf("application %d: evaluation references unknown ordinal %d", i, fe.Ordinal)
			}
			at := fe.EvaluatedAt
			if at.IsZero() {
				at = now
			}
			e := model.Evaluation{ApplicationID: app.ID, QuestionID: qid, Answer: fe.Answer, EvaluatedAt: at}
			if fe.Feedback != nil {
				raw, err := model.EncodeFeedback(*fe.Feedback)
				if err != nil {
					return res, err
				}
				e = fe.Feedback.Evaluation(app.ID, qid, fe.Answer, raw, at)
			}
			if err := s.CreateEvaluation(ctx, &e); err != nil {
				return res, fmt.Errorf("application %d evaluation: %w", i, err)
			}
			res.Evaluations++
		}
	}
	return res, nil
}
