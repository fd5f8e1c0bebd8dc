package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/proctor"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/validator"
)

const keepAliveInterval = 30 * time.Second

// ProctorHandler receives integrity events and streams them to proctors.
type ProctorHandler struct {
	proctorService *service.ProctorService
	log            zerolog.Logger
}

// NewProctorHandler creates a new ProctorHandler.
func NewProctorHandler(proctorService *service.ProctorService, log zerolog.Logger) *ProctorHandler {
	return &ProctorHandler{
		proctorService: proctorService,
		log:            log.With().Str("component", "proctor_handler").Logger(),
	}
}

// RecordEvents godoc
// POST /api/v1/exams/:exam_id/proctor-events
func (h *ProctorHandler) RecordEvents(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var batch proctor.EventBatch
	if fields := validator.Bind(c, &batch); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	caller := model.Identity{UserID: claims.UserID, Role: claims.Role}
	if err := h.proctorService.Record(c.Request.Context(), caller, c.Param("exam_id"), batch.Events); err != nil {
		failService(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"queued": len(batch.Events)})
}

// LiveEvents godoc
// GET /api/v1/exams/:exam_id/proctor-events/live
// Server-sent events for proctors watching an exam room.
func (h *ProctorHandler) LiveEvents(c *gin.Context) {
	examID := c.Param("exam_id")
	reqCtx := c.Request.Context()

	events, err := h.proctorService.Subscribe(reqCtx, examID)
	if err != nil {
		h.log.Error().Err(err).Str("exam_id", examID).Msg("Live proctor feed unavailable")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	h.log.Info().Str("exam_id", examID).Msg("Proctor attached to live feed")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-reqCtx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("proctor_event", ev)
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"type": "ping"})
			return true
		}
	})

	h.log.Info().Str("exam_id", examID).Msg("Proctor detached from live feed")
}
