package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Evaluation is the scored outcome of one answer to one question.
type Evaluation struct {
	ID               int64     `json:"id" db:"id"`
	ApplicationID    int64     `json:"application_id" db:"application_id"`
	QuestionID       int64     `json:"question_id" db:"question_id"`
	StructureClarity *int      `json:"structure_clarity" db:"structure_clarity"`
	TechnicalMastery *int      `json:"technical_mastery" db:"technical_mastery"`
	Relevance        *int      `json:"relevance" db:"relevance"`
	Communication    *int      `json:"communication" db:"communication"`
	Percentage       *float64  `json:"percentage" db:"percentage"` // relative to the question weight
	Answer           string    `json:"answer" db:"answer"`
	Feedback         string    `json:"feedback" db:"feedback"` // raw scorer payload
	EvaluatedAt      time.Time `json:"evaluated_at" db:"evaluated_at"`
}

// IsComplete reports whether every criterion, the percentage and the feedback
// payload are present.
func (e Evaluation) IsComplete() bool {
	return e.StructureClarity != nil &&
		e.TechnicalMastery != nil &&
		e.Relevance != nil &&
		e.Communication != nil &&
		e.Percentage != nil &&
		!emptyPayload(e.Feedback)
}

// emptyPayload reports whether a raw feedback payload carries nothing, which
// includes a JSON null.
func emptyPayload(raw string) bool {
	raw = strings.TrimSpace(raw)
	return raw == "" || raw == "null"
}

// Feedback is the payload produced by the external scorer for one answer.
type Feedback struct {
	StructureClarity int      `json:"structure_clarity" binding:"min=1,max=100"`
	TechnicalMastery int      `json:"technical_mastery" binding:"min=1,max=100"`
	Relevance        int      `json:"relevance" binding:"min=1,max=100"`
	Communication    int      `json:"communication" binding:"min=1,max=100"`
	Percentage       float64  `json:"percentage" binding:"min=0"`
	Strengths        []string `json:"strengths"`
	Improvements     []string `json:"improvements"`
}

// RecordEvaluationReq submits an externally produced evaluation for a question.
type RecordEvaluationReq struct {
	QuestionID int64    `json:"question_id" binding:"required"`
	Answer     string   `json:"answer"`
	Feedback   Feedback `json:"feedback"`
}

var ErrEmptyFeedback = errors.New("feedback payload is empty")

// ParseFeedback decodes a raw feedback payload.
func ParseFeedback(raw string) (Feedback, error) {
	if emptyPayload(raw) {
		return Feedback{}, ErrEmptyFeedback
	}

	var fb Feedback
	if err := json.Unmarshal([]byte(raw), &fb); err != nil {
		return Feedback{}, fmt.Errorf("decode feedback: %w", err)
	}
	fb.Strengths = compact(fb.Strengths)
	fb.Improvements = compact(fb.Improvements)
	return fb, nil
}

// EncodeFeedback renders feedback as the raw payload stored with an evaluation.
func EncodeFeedback(f Feedback) (string, error) {
	if f.Strengths == nil {
		f.Strengths = []string{}
	}
	if f.Improvements == nil {
		f.Improvements = []string{}
	}
	b, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("encode feedback: %w", err)
	}
	return string(b), nil
}

// Evaluation builds an evaluation record from the scorer payload.
func (f Feedback) Evaluation(applicationID, questionID int64, answer, raw string, at time.Time) Evaluation {
	sc, tm, rel, com, pct := f.StructureClarity, f.TechnicalMastery, f.Relevance, f.Communication, f.Percentage
	return Evaluation{
		ApplicationID:    applicationID,
		QuestionID:       questionID,
		StructureClarity: &sc,
		TechnicalMastery: &tm,
		Relevance:        &rel,
		Communication:    &com,
		Percentage:       &pct,
		Answer:           answer,
		Feedback:         raw,
		EvaluatedAt:      at,
	}
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
