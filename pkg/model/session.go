package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type SessionStatus string

const (
	SessionStatusInitiated  SessionStatus = "INITIATED"
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
	SessionStatusPaused     SessionStatus = "PAUSED"
	SessionStatusAbandoned  SessionStatus = "ABANDONED"
	SessionStatusExpired    SessionStatus = "EXPIRED"
)

// Terminal reports whether no further progress can be recorded in this status.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusAbandoned || s == SessionStatusExpired
}

// Session tracks one application's interview-taking process.
type Session struct {
	ID             string          `json:"id" db:"id"`
	ApplicationID  int64           `json:"application_id" db:"application_id"`
	Status         SessionStatus   `json:"status" db:"status"`
	Progress       int             `json:"progress" db:"progress"`
	TotalScore     *float64        `json:"total_score" db:"total_score"`
	Completed      bool            `json:"completed" db:"completed"`
	StartedAt      time.Time       `json:"started_at" db:"started_at"`
	LastActivityAt time.Time       `json:"last_activity_at" db:"last_activity_at"`
	FinishedAt     *time.Time      `json:"finished_at" db:"finished_at"`
	Snapshot       SessionSnapshot `json:"snapshot" db:"snapshot"`
}

const SnapshotVersion = 1

var ErrUnknownSnapshotVersion = errors.New("unknown session snapshot version")

type SnapshotAnswer struct {
	Text       string    `json:"text"`
	AnsweredAt time.Time `json:"answered_at"`
}

// SessionSnapshot is the in-progress copy of questions, answers and evaluations,
// each keyed by question id.
type SessionSnapshot struct {
	Version     int                      `json:"version"`
	Questions   map[int64]Question       `json:"questions"`
	Answers     map[int64]SnapshotAnswer `json:"answers"`
	Evaluations map[int64]Evaluation     `json:"evaluations"`
}

func NewSessionSnapshot(questions []Question) SessionSnapshot {
	s := SessionSnapshot{
		Version:     SnapshotVersion,
		Questions:   make(map[int64]Question, len(questions)),
		Answers:     map[int64]SnapshotAnswer{},
		Evaluations: map[int64]Evaluation{},
	}
	for _, q := range questions {
		s.Questions[q.ID] = q
	}
	return s
}

func EncodeSessionSnapshot(s SessionSnapshot) ([]byte, error) {
	if s.Version == 0 {
		s.Version = SnapshotVersion
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session snapshot: %w", err)
	}
	return b, nil
}

func DecodeSessionSnapshot(b []byte) (SessionSnapshot, error) {
	var s SessionSnapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return SessionSnapshot{}, fmt.Errorf("decode session snapshot: %w", err)
	}
	if s.Version != SnapshotVersion {
		return SessionSnapshot{}, fmt.Errorf("%w: %d", ErrUnknownSnapshotVersion, s.Version)
	}
	if s.Questions == nil {
		s.Questions = map[int64]Question{}
	}
	if s.Answers == nil {
		s.Answers = map[int64]SnapshotAnswer{}
	}
	if s.Evaluations == nil {
		s.Evaluations = map[int64]Evaluation{}
	}
	return s, nil
}

type UpdateProgressReq struct {
	Progress *int `json:"progress" binding:"required"`
}
