package evaluation

import (
	"math"
	"strconv"

	"github.com/abhishek622/evalengine/internal/apperr"
	"github.com/abhishek622/evalengine/pkg/model"
	"go.uber.org/zap"
)

// NoAnswerRecorded is reported in a detail row whose question has no evaluation.
const NoAnswerRecorded = "no answer recorded"

type CriteriaAverages struct {
	StructureClarity float64 `json:"structure_clarity"`
	TechnicalMastery float64 `json:"technical_mastery"`
	Relevance        float64 `json:"relevance"`
	Communication    float64 `json:"communication"`
}

type Summary struct {
	ApplicationID   int64            `json:"application_id"`
	EvaluationCount int              `json:"evaluation_count"`
	Averages        CriteriaAverages `json:"averages"`
	// TotalScore is the sum of every evaluation's percentage.
	TotalScore        float64  `json:"total_score"`
	Strengths         []string `json:"strengths"`
	Improvements      []string `json:"improvements"`
	MalformedFeedback []int64  `json:"malformed_feedback,omitempty"`
}

type CriteriaBreakdown struct {
	StructureClarity *int `json:"structure_clarity"`
	TechnicalMastery *int `json:"technical_mastery"`
	Relevance        *int `json:"relevance"`
	Communication    *int `json:"communication"`
}

type QuestionDetail struct {
	QuestionID        int64             `json:"question_id"`
	Ordinal           int               `json:"ordinal"`
	Type              string            `json:"type"`
	Text              string            `json:"text"`
	Weight            float64           `json:"weight"`
	Answer            string            `json:"answer"`
	Answered          bool              `json:"answered"`
	EvaluationID      int64             `json:"evaluation_id,omitempty"`
	Criteria          CriteriaBreakdown `json:"criteria"`
	Percentage        *float64          `json:"percentage"`
	Strengths         []string          `json:"strengths"`
	Improvements      []string          `json:"improvements"`
	FeedbackMalformed bool              `json:"feedback_malformed,omitempty"`
}

// Aggregator turns a complete bundle into reports.
type Aggregator struct {
	log *zap.Logger
}

func NewAggregator(log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{log: log}
}

func (a *Aggregator) requireComplete(b Bundle, op string) error {
	v := Validate(b)
	if v.Complete {
		return nil
	}
	return apperr.New(apperr.CodePreconditionFailed, op+" requires a complete bundle").
		With("application_id", strconv.FormatInt(b.Application.ID, 10)).
		WithProblems(v.Messages())
}

// Summarize averages each criterion over all evaluations, sums their
// percentages and collects the distinct strengths and improvements.
func (a *Aggregator) Summarize(b Bundle) (Summary, error) {
	if err := a.requireComplete(b, "summarize"); err != nil {
		return Summary{}, err
	}

	var sc, tm, rel, com, total float64
	strengths := newStringSet()
	improvements := newStringSet()
	var malformed []int64

	for _, q := range b.OrderedQuestions() {
		e := b.Index[q.ID]
		sc += float64(*e.StructureClarity)
		tm += float64(*e.TechnicalMastery)
		rel += float64(*e.Relevance)
		com += float64(*e.Communication)
		total += *e.Percentage

		fb, ok := a.feedback(b.Application.ID, e)
		if !ok {
			malformed = append(malformed, e.ID)
			continue
		}
		strengths.add(fb.Strengths...)
		improvements.add(fb.Improvements...)
	}

	n := float64(len(b.Index))
	return Summary{
		ApplicationID:   b.Application.ID,
		EvaluationCount: len(b.Index),
		Averages: CriteriaAverages{
			StructureClarity: round2(sc / n),
			TechnicalMastery: round2(tm / n),
			Relevance:        round2(rel / n),
			Communication:    round2(com / n),
		},
		TotalScore:        round2(total),
		Strengths:         strengths.items,
		Improvements:      improvements.items,
		MalformedFeedback: malformed,
	}, nil
}

// Detail returns one row per question in ascending ordinal order.
func (a *Aggregator) Detail(b Bundle) ([]QuestionDetail, error) {
	if err := a.requireComplete(b, "detail"); err != nil {
		return nil, err
	}

	questions := b.OrderedQuestions()
	out := make([]QuestionDetail, 0, len(questions))
	for _, q := range questions {
		d := QuestionDetail{
			QuestionID:   q.ID,
			Ordinal:      q.Ordinal,
			Type:         q.Type,
			Text:         q.Text,
			Weight:       q.Weight,
			Answer:       NoAnswerRecorded,
			Strengths:    []string{},
			Improvements: []string{},
		}
		if e, ok := b.Index[q.ID]; ok {
			d.Answer = e.Answer
			d.Answered = true
			d.EvaluationID = e.ID
			d.Criteria = CriteriaBreakdown{
				StructureClarity: e.StructureClarity,
				TechnicalMastery: e.TechnicalMastery,
				Relevance:        e.Relevance,
				Communication:    e.Communication,
			}
			d.Percentage = e.Percentage
			if fb, ok := a.feedback(b.Application.ID, e); ok {
				d.Strengths = fb.Strengths
				d.Improvements = fb.Improvements
			} else {
				d.FeedbackMalformed = true
			}
		}
		out = append(out, d)
	}
	return out, nil
}

// feedback parses an evaluation's payload. A malformed payload is logged and
// contributes nothing.
func (a *Aggregator) feedback(applicationID int64, e model.Evaluation) (model.Feedback, bool) {
	fb, err := model.ParseFeedback(e.Feedback)
	if err != nil {
		a.log.Warn("aggregate: malformed feedback payload",
			zap.String("code", string(apperr.CodeMalformedPayload)),
			zap.Int64("application_id", applicationID),
			zap.Int64("evaluation_id", e.ID),
			zap.Error(err),
		)
		return model.Feedback{}, false
	}
	return fb, true
}

type stringSet struct {
	seen  map[string]struct{}
	items []string
}

func newStringSet() *stringSet {
	return &stringSet{seen: map[string]struct{}{}, items: []string{}}
}

func (s *stringSet) add(values ...string) {
	for _, v := range values {
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.items = append(s.items, v)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
