package model

import "time"

type Question struct {
	ID            int64     `json:"id" db:"id"`
	ApplicationID int64     `json:"application_id" db:"application_id"`
	Ordinal       int       `json:"ordinal" db:"ordinal"`
	Text          string    `json:"text" db:"text"`
	Type          string    `json:"type" db:"type"`
	Weight        float64   `json:"weight" db:"weight"` // points, expected to sum to 100 per application
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

type RecordAnswerReq struct {
	QuestionID int64  `json:"question_id" binding:"required"`
	Answer     string `json:"answer" binding:"required"`
}
