package model

import (
	"time"

	"github.com/google/uuid"
)

// Checkpoint is a durable snapshot of in-progress answers plus the original start time.
type Checkpoint struct {
	SessionID            uuid.UUID         `json:"session_id"`
	UserID               string            `json:"user_id"`
	ExamID               string            `json:"exam_id"`
	StartedAt            time.Time         `json:"started_at"`
	CurrentQuestionIndex int               `json:"current_question_index"`
	Answers              map[string]Answer `json:"answers"`
	SavedAt              time.Time         `json:"saved_at"`
}
