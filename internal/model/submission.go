package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmitMethod records what triggered a submission.
type SubmitMethod string

const (
	SubmitMethodManual   SubmitMethod = "manual"
	SubmitMethodForced   SubmitMethod = "forced"
	SubmitMethodOperator SubmitMethod = "operator"
)

// Submission is the canonical payload delivered to the Submission Service.
// Answers holds flattened wire values: nil, string or []string.
type Submission struct {
	SessionID       uuid.UUID      `json:"session_id" binding:"required"`
	ExamID          string         `json:"exam_id" binding:"required"`
	UserID          string         `json:"user_id" binding:"required"`
	Answers         map[string]any `json:"answers" binding:"required"`
	StartedAt       time.Time      `json:"started_at"`
	SubmittedAt     time.Time      `json:"submitted_at" binding:"required"`
	DurationSeconds int64          `json:"duration_seconds" binding:"min=0"`
	Method          SubmitMethod   `json:"method" binding:"required,oneof=manual forced operator"`
}

// SubmissionResponse is the Submission Service reply.
type SubmissionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
