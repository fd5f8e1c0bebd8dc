package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/validator"
)

// SubmissionHandler receives final exam submissions.
type SubmissionHandler struct {
	submissionService *service.SubmissionService
	log               zerolog.Logger
}

// NewSubmissionHandler creates a new SubmissionHandler.
func NewSubmissionHandler(submissionService *service.SubmissionService, log zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		submissionService: submissionService,
		log:               log.With().Str("component", "submission_handler").Logger(),
	}
}

// Submit godoc
// POST /api/v1/exams/:exam_id/submissions
// Idempotent per (exam, user): a repeat returns success with "already submitted".
func (h *SubmissionHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var sub model.Submission
	if fields := validator.Bind(c, &sub); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	caller := model.Identity{UserID: claims.UserID, Role: claims.Role}
	resp, err := h.submissionService.Accept(c.Request.Context(), caller, c.Param("exam_id"), &sub)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", claims.UserID).Msg("Submission not accepted")
		failService(c, err)
		return
	}

	response.Success(c, http.StatusOK, resp)
}

// GetReceipt godoc
// GET /api/v1/exams/:exam_id/submissions/:user_id
// Lets proctors confirm that a student's submission reached the hub.
func (h *SubmissionHandler) GetReceipt(c *gin.Context) {
	receipt, err := h.submissionService.Receipt(c.Request.Context(), c.Param("exam_id"), c.Param("user_id"))
	if err != nil {
		failService(c, err)
		return
	}
	response.Success(c, http.StatusOK, receipt)
}
