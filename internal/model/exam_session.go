package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusInitializing SessionStatus = "INITIALIZING"
	SessionStatusActive       SessionStatus = "ACTIVE"
	SessionStatusSubmitting   SessionStatus = "SUBMITTING"
	SessionStatusSubmitted    SessionStatus = "SUBMITTED"
	SessionStatusExpired      SessionStatus = "EXPIRED"
	SessionStatusAbandoned    SessionStatus = "ABANDONED"
)

// Terminal reports whether no further transitions are possible without operator action.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusSubmitted || s == SessionStatusAbandoned
}

// ExamSession represents one attempt at an exam.
type ExamSession struct {
	ID                   uuid.UUID         `json:"id"`
	UserID               string            `json:"user_id"`
	ExamID               string            `json:"exam_id"`
	StartedAt            time.Time         `json:"started_at"`
	Deadline             time.Time         `json:"deadline"`
	CurrentQuestionIndex int               `json:"current_question_index"`
	Status               SessionStatus     `json:"status"`
	Answers              map[string]Answer `json:"answers"`
}

// Snapshot returns a copy whose answer map can be handed to other components.
func (s *ExamSession) Snapshot() ExamSession {
	cp := *s
	cp.Answers = make(map[string]Answer, len(s.Answers))
	for k, v := range s.Answers {
		cp.Answers[k] = v
	}
	return cp
}
