package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/identity"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/validator"
	ws "github.com/stemsi/exstem-session/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients do not send Origin.
				return true
			}
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the exam stream used by clients to submit.
type WSHandler struct {
	submissionService *service.SubmissionService
	log               zerolog.Logger
	upgrader          websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(submissionService *service.SubmissionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		submissionService: submissionService,
		log:               log.With().Str("component", "ws_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
	}
}

// ExamStream godoc
// WS /ws/v1/exams/:exam_id/stream?token=
func (h *WSHandler) ExamStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID := c.Param("exam_id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("user_id", claims.UserID).
		Str("exam_id", examID).
		Logger()
	wsLog.Debug().Msg("Client connected")

	for {
		var raw json.RawMessage
		if err := ws.ReadJSON(conn, &raw, ws.ReadWait); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			ws.WriteError(conn, "malformed message")
			continue
		}

		switch env.Action {
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		case ws.ActionSubmit:
			h.handleSubmit(c.Request.Context(), conn, wsLog, claims, examID, raw)
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(env.Action))
		}
	}
}

// handleSubmit replies accepted, rejected (do not retry) or error (retry).
func (h *WSHandler) handleSubmit(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, claims *identity.Claims, examID string, raw json.RawMessage) {
	var req ws.SubmitRequest
	if err := json.Unmarshal(raw, &req); err != nil || req.Submission == nil {
		ws.WriteTyped(conn, ws.SubmitResponse{Event: ws.EventRejected, Message: "malformed submission"})
		return
	}
	if err := binding.Validator.ValidateStruct(req.Submission); err != nil {
		fields := validator.TranslateErrors(err)
		wsLog.Warn().Interface("fields", fields).Msg("Invalid submission")
		ws.WriteTyped(conn, ws.SubmitResponse{Event: ws.EventRejected, Message: response.GetMessage(response.ErrValidation)})
		return
	}

	caller := model.Identity{UserID: claims.UserID, Role: claims.Role}
	resp, err := h.submissionService.Accept(ctx, caller, examID, req.Submission)
	switch {
	case errors.Is(err, service.ErrUserMismatch):
		ws.WriteTyped(conn, ws.SubmitResponse{Event: ws.EventRejected, Message: response.GetMessage(response.ErrUserMismatch)})
	case errors.Is(err, service.ErrExamMismatch):
		ws.WriteTyped(conn, ws.SubmitResponse{Event: ws.EventRejected, Message: response.GetMessage(response.ErrExamMismatch)})
	case err != nil:
		wsLog.Error().Err(err).Msg("Submission not accepted")
		ws.WriteTyped(conn, ws.SubmitResponse{Event: ws.EventError, Error: "submission could not be stored"})
	default:
		ws.WriteTyped(conn, ws.SubmitResponse{Event: ws.EventAccepted, Message: resp.Message})
	}
}
