package model

import (
	"time"

	"github.com/google/uuid"
)

// ProctorEventKind classifies an integrity event raised by the Proctoring Monitor.
type ProctorEventKind string

const (
	ProctorEventEngaged         ProctorEventKind = "engaged"
	ProctorEventReleased        ProctorEventKind = "released"
	ProctorEventFocusLost       ProctorEventKind = "focus_lost"
	ProctorEventFocusGained     ProctorEventKind = "focus_gained"
	ProctorEventShortcutBlocked ProctorEventKind = "shortcut_blocked"
	ProctorEventOverride        ProctorEventKind = "override"
	ProctorEventOverrideDenied  ProctorEventKind = "override_denied"
)

// ProctorEvent is one entry of the integrity log. Events are flags for human
// review; none of them changes session state.
type ProctorEvent struct {
	SessionID  uuid.UUID        `json:"session_id"`
	ExamID     string           `json:"exam_id" binding:"required"`
	UserID     string           `json:"user_id" binding:"required"`
	Kind       ProctorEventKind `json:"kind" binding:"required"`
	Detail     string           `json:"detail,omitempty"`
	RecordedAt time.Time        `json:"recorded_at" binding:"required"`
}
