package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-session/internal/content"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
)

// failService maps service and content errors onto the response envelope.
// Unknown errors become 500 so clients treat them as retryable.
func failService(c *gin.Context, err error) {
	var le *content.LoadError
	switch {
	case errors.Is(err, service.ErrUserMismatch):
		response.Fail(c, http.StatusForbidden, response.ErrUserMismatch)
	case errors.Is(err, service.ErrExamMismatch):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrExamMismatch)
	case errors.Is(err, service.ErrNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, content.ErrNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrExamNotAvailable)
	case errors.As(err, &le) && errors.Is(err, content.ErrInvalid):
		response.FailWithFields(c, http.StatusUnprocessableEntity, response.ErrInvalidPaper, le.Fields)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
