package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/model"
	"github.com/stemsi/exstem-academy/internal/response"
)

// CatalogPath is where a client lands after a missing test.
const CatalogPath = "/api/v1/student/assessments"

// classify maps a domain error to its HTTP status and code.
func classify(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrInvalidTest):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, model.ErrNoQuestions):
		return http.StatusBadRequest, response.ErrNoQuestions
	case errors.Is(err, model.ErrInvalidIndex):
		return http.StatusBadRequest, response.ErrInvalidIndex
	case errors.Is(err, model.ErrInvalidOption):
		return http.StatusBadRequest, response.ErrInvalidOption
	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrNotStarted),
		errors.Is(err, model.ErrAlreadyStarted):
		return http.StatusConflict, response.ErrInvalidTransition
	case errors.Is(err, model.ErrAlreadyCompleted):
		return http.StatusConflict, response.ErrAlreadyCompleted
	case errors.Is(err, model.ErrNoSession), errors.Is(err, model.ErrSessionClosed):
		return http.StatusNotFound, response.ErrNoSession
	case errors.Is(err, model.ErrPersist):
		return http.StatusAccepted, response.ErrPersistFailed
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// fail writes the envelope for err. Unknown errors are logged.
func fail(c *gin.Context, log zerolog.Logger, err error) {
	status, code := classify(err)
	switch code {
	case response.ErrNotFound:
		response.FailWithRedirect(c, status, code, CatalogPath)
	case response.ErrInternal:
		log.Error().
			Err(err).
			Str("request_id", c.GetString(response.ContextKeyRequestID)).
			Str("path", c.FullPath()).
			Msg("Request failed")
		response.Fail(c, status, code)
	default:
		response.Fail(c, status, code)
	}
}
