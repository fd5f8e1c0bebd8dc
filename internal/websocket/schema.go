// Package websocket holds the exam stream wire schema shared by the client
// transport and the hub handler.
package websocket

import "github.com/stemsi/exstem-session/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSubmit Action = "submit"
	ActionPing   Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// SubmitRequest carries the complete submission payload.
type SubmitRequest struct {
	Action     Action            `json:"action"`
	Submission *model.Submission `json:"submission"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventAccepted Event = "accepted"
	EventRejected Event = "rejected"
	EventError    Event = "error"
	EventPong     Event = "pong"
)

// SubmitResponse is the reply to a submit action.
type SubmitResponse struct {
	Event   Event  `json:"event"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
