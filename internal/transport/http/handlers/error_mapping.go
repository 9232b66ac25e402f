package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Maryam-Bagia/StudyNest/internal/core/domain"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
// An empty Message echoes the error text.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

var (
	sessionErrorCases = []ErrorCase{
		{Err: domain.ErrInvalidState, Status: http.StatusConflict, Message: "session operation not allowed in the current state"},
	}
	navigationErrorCases = []ErrorCase{
		{Err: domain.ErrValidation, Status: http.StatusBadRequest},
	}
)

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil || !errors.Is(err, cs.Err) {
			continue
		}
		message := cs.Message
		if message == "" {
			message = err.Error()
		}
		c.JSON(cs.Status, NewErrorResponse(c, message))
		return
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}
