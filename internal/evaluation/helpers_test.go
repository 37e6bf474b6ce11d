package evaluation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/abhishek622/evalengine/pkg/model"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func questions(applicationID int64, n int) []model.Question {
	out := make([]model.Question, n)
	for i := range out {
		out[i] = model.Question{
			ID:            int64(i + 1),
			ApplicationID: applicationID,
			Ordinal:       i + 1,
			Text:          "question",
			Type:          "technical",
			Weight:        20,
		}
	}
	return out
}

func feedbackJSON(t *testing.T, strengths, improvements []string) string {
	t.Helper()
	raw, err := json.Marshal(model.Feedback{
		StructureClarity: 4,
		TechnicalMastery: 4,
		Relevance:        4,
		Communication:    4,
		Percentage:       18,
		Strengths:        strengths,
		Improvements:     improvements,
	})
	if err != nil {
		t.Fatalf("marshal feedback: %v", err)
	}
	return string(raw)
}

func completeEvaluation(id, questionID int64, scores [4]int, pct float64, feedback string, at time.Time) model.Evaluation {
	return model.Evaluation{
		ID:               id,
		ApplicationID:    1,
		QuestionID:       questionID,
		StructureClarity: intPtr(scores[0]),
		TechnicalMastery: intPtr(scores[1]),
		Relevance:        intPtr(scores[2]),
		Communication:    intPtr(scores[3]),
		Percentage:       floatPtr(pct),
		Answer:           "answer",
		Feedback:         feedback,
		EvaluatedAt:      at,
	}
}
