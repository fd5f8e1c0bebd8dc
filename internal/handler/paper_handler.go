package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/validator"
)

// PaperHandler serves exam papers to clients and lets admins publish them.
type PaperHandler struct {
	paperService *service.PaperService
	log          zerolog.Logger
}

// NewPaperHandler creates a new PaperHandler.
func NewPaperHandler(paperService *service.PaperService, log zerolog.Logger) *PaperHandler {
	return &PaperHandler{
		paperService: paperService,
		log:          log.With().Str("component", "paper_handler").Logger(),
	}
}

// GetPaper godoc
// GET /api/v1/exams/:exam_id/paper
func (h *PaperHandler) GetPaper(c *gin.Context) {
	examID := c.Param("exam_id")

	exam, err := h.paperService.Paper(c.Request.Context(), examID)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID).Msg("Paper unavailable")
		failService(c, err)
		return
	}

	response.Success(c, http.StatusOK, exam)
}

// PutPaper godoc
// PUT /api/v1/exams/:exam_id/paper
func (h *PaperHandler) PutPaper(c *gin.Context) {
	var exam model.ExamContent
	if fields := validator.Bind(c, &exam); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.paperService.Publish(c.Request.Context(), c.Param("exam_id"), &exam); err != nil {
		failService(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam_id": exam.ID, "questions": len(exam.Questions)})
}
