// Package evaluation loads an application's questions and evaluations, checks
// that they form a complete dataset and aggregates them into reports.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/abhishek622/evalengine/internal/apperr"
	"github.com/abhishek622/evalengine/internal/repository"
	"github.com/abhishek622/evalengine/pkg/model"
	"go.uber.org/zap"
)

// Reader is the subset of the record store needed to build a Bundle.
type Reader interface {
	FindApplication(ctx context.Context, id int64) (model.Application, error)
	FindQuestionsByApplication(ctx context.Context, applicationID int64) ([]model.Question, error)
	FindEvaluationsByApplication(ctx context.Context, applicationID int64) ([]model.Evaluation, error)
}

// Bundle is one application with all of its questions and evaluations.
type Bundle struct {
	Application model.Application
	Questions   []model.Question
	// Evaluations is every stored evaluation, duplicates included.
	Evaluations []model.Evaluation
	// Index maps question id to the evaluation retained for it.
	Index map[int64]model.Evaluation
	// Discarded holds evaluations superseded by a later one for the same question.
	Discarded []model.Evaluation
}

// LoadBundle reads the application, its questions and its evaluations with
// exactly three store calls.
func LoadBundle(ctx context.Context, r Reader, log *zap.Logger, applicationID int64) (Bundle, error) {
	app, err := r.FindApplication(ctx, applicationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Bundle{}, apperr.Wrap(apperr.CodeNotFound, "application not found", err).
				With("application_id", strconv.FormatInt(applicationID, 10))
		}
		return Bundle{}, apperr.Infrastructure("find application", err)
	}

	questions, err := r.FindQuestionsByApplication(ctx, applicationID)
	if err != nil {
		return Bundle{}, apperr.Infrastructure("find questions", err)
	}

	evaluations, err := r.FindEvaluationsByApplication(ctx, applicationID)
	if err != nil {
		return Bundle{}, apperr.Infrastructure("find evaluations", err)
	}

	return NewBundle(app, questions, evaluations, log), nil
}

// NewBundle builds the question index in one pass over evaluations. When two
// evaluations reference the same question the later EvaluatedAt wins, with the
// higher id breaking ties.
func NewBundle(app model.Application, questions []model.Question, evaluations []model.Evaluation, log *zap.Logger) Bundle {
	if log == nil {
		log = zap.NewNop()
	}
	if questions == nil {
		questions = []model.Question{}
	}
	if evaluations == nil {
		evaluations = []model.Evaluation{}
	}

	b := Bundle{
		Application: app,
		Questions:   questions,
		Evaluations: evaluations,
		Index:       make(map[int64]model.Evaluation, len(evaluations)),
	}
	for _, e := range evaluations {
		current, ok := b.Index[e.QuestionID]
		if !ok {
			b.Index[e.QuestionID] = e
			continue
		}
		keep, drop := current, e
		if supersedes(e, current) {
			keep, drop = e, current
		}
		b.Index[e.QuestionID] = keep
		b.Discarded = append(b.Discarded, drop)
		log.Warn("load_bundle: duplicate evaluation discarded",
			zap.Int64("application_id", app.ID),
			zap.Int64("question_id", e.QuestionID),
			zap.Int64("kept_evaluation_id", keep.ID),
			zap.Int64("discarded_evaluation_id", drop.ID),
		)
	}
	return b
}

func supersedes(a, b model.Evaluation) bool {
	if !a.EvaluatedAt.Equal(b.EvaluatedAt) {
		return a.EvaluatedAt.After(b.EvaluatedAt)
	}
	return a.ID > b.ID
}

// Resolved returns the retained evaluations ordered by question id.
func (b Bundle) Resolved() []model.Evaluation {
	out := make([]model.Evaluation, 0, len(b.Index))
	for _, e := range b.Index {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out
}

// OrderedQuestions returns the questions in ascending ordinal order.
func (b Bundle) OrderedQuestions() []model.Question {
	out := append([]model.Question(nil), b.Questions...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Ordinal != out[j].Ordinal {
			return out[i].Ordinal < out[j].Ordinal
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (b Bundle) String() string {
	return fmt.Sprintf("Bundle{Application=%d, Questions=%d, Evaluations=%d, Discarded=%d}",
		b.Application.ID, len(b.Questions), len(b.Evaluations), len(b.Discarded))
}
