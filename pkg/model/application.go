package model

import "time"

type ApplicationState string

const (
	ApplicationStatePending    ApplicationState = "PENDING"
	ApplicationStateInProgress ApplicationState = "IN_PROGRESS"
	ApplicationStateCompleted  ApplicationState = "COMPLETED"
	ApplicationStateCancelled  ApplicationState = "CANCELLED"
)

// Application is one candidate's application ("postulación") to one job posting.
type Application struct {
	ID                 int64            `json:"id" db:"id"`
	CandidateID        string           `json:"candidate_id" db:"candidate_id"`
	PostingID          int64            `json:"posting_id" db:"posting_id"`
	State              ApplicationState `json:"state" db:"state"`
	QuestionsGenerated bool             `json:"questions_generated" db:"questions_generated"`
	SessionID          *string          `json:"session_id" db:"session_id"`
	CreatedAt          time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at" db:"updated_at"`
}

type QuickStats struct {
	ApplicationID           int64 `json:"application_id"`
	QuestionCount           int   `json:"question_count"`
	EvaluationCount         int   `json:"evaluation_count"`
	CompleteEvaluationCount int   `json:"complete_evaluation_count"`
}
