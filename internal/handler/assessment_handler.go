package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/catalog"
	"github.com/stemsi/exstem-academy/internal/middleware"
	"github.com/stemsi/exstem-academy/internal/model"
	"github.com/stemsi/exstem-academy/internal/response"
	"github.com/stemsi/exstem-academy/internal/service"
	"github.com/stemsi/exstem-academy/internal/session"
	"github.com/stemsi/exstem-academy/internal/validator"
)

// AssessmentHandler serves the taker-facing assessment endpoints.
type AssessmentHandler struct {
	svc *service.AssessmentService
	log zerolog.Logger
}

// NewAssessmentHandler creates a new AssessmentHandler.
func NewAssessmentHandler(svc *service.AssessmentService, log zerolog.Logger) *AssessmentHandler {
	return &AssessmentHandler{
		svc: svc,
		log: log.With().Str("component", "assessment_handler").Logger(),
	}
}

// ListAssessments godoc
// GET /api/v1/student/assessments?status=all|pending|completed
// Returns the catalog in order with the taker's status per test.
func (h *AssessmentHandler) ListAssessments(c *gin.Context) {
	filter, err := catalog.ParseStatusFilter(c.Query("status"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidFilter)
		return
	}

	list, err := h.svc.ListAssessments(c.Request.Context(), middleware.TakerID(c), filter)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	if list == nil {
		list = []catalog.Assessment{}
	}

	response.Success(c, http.StatusOK, gin.H{"assessments": list})
}

// StartAssessment godoc
// POST /api/v1/student/assessments/:test_id/start
// Opens an attempt, or rejoins the live one (idempotent).
func (h *AssessmentHandler) StartAssessment(c *gin.Context) {
	testID, ok := bindTestID(c)
	if !ok {
		return
	}

	state, err := h.svc.Start(c.Request.Context(), middleware.TakerID(c), testID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": state})
}

// GetSession godoc
// GET /api/v1/student/assessments/:test_id/session
// Returns the live session state. Covers page reloads.
func (h *AssessmentHandler) GetSession(c *gin.Context) {
	testID, ok := bindTestID(c)
	if !ok {
		return
	}
	h.respondState(c)(h.svc.State(middleware.TakerID(c), testID))
}

// SelectAnswer godoc
// PUT /api/v1/student/assessments/:test_id/answers/:index
// Records the chosen option, replacing any earlier choice.
func (h *AssessmentHandler) SelectAnswer(c *gin.Context) {
	uri, testID, ok := bindAnswerURI(c)
	if !ok {
		return
	}

	var req model.SelectAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	h.respondState(c)(h.svc.SelectAnswer(middleware.TakerID(c), testID, *uri.Index, req.Option))
}

// ClearAnswer godoc
// DELETE /api/v1/student/assessments/:test_id/answers/:index
func (h *AssessmentHandler) ClearAnswer(c *gin.Context) {
	uri, testID, ok := bindAnswerURI(c)
	if !ok {
		return
	}
	h.respondState(c)(h.svc.ClearAnswer(middleware.TakerID(c), testID, *uri.Index))
}

// Navigate godoc
// POST /api/v1/student/assessments/:test_id/navigate
func (h *AssessmentHandler) Navigate(c *gin.Context) {
	testID, ok := bindTestID(c)
	if !ok {
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	h.respondState(c)(h.svc.Navigate(middleware.TakerID(c), testID, *req.Index))
}

// NextQuestion godoc
// POST /api/v1/student/assessments/:test_id/next
func (h *AssessmentHandler) NextQuestion(c *gin.Context) {
	testID, ok := bindTestID(c)
	if !ok {
		return
	}
	h.respondState(c)(h.svc.Next(middleware.TakerID(c), testID))
}

// PreviousQuestion godoc
// POST /api/v1/student/assessments/:test_id/previous
func (h *AssessmentHandler) PreviousQuestion(c *gin.Context) {
	testID, ok := bindTestID(c)
	if !ok {
		return
	}
	h.respondState(c)(h.svc.Previous(middleware.TakerID(c), testID))
}

// Submit godoc
// POST /api/v1/student/assessments/:test_id/submit
// Scores and records the attempt. A repeated submit reports submitted=false.
// When the result store is unavailable the submission is still accepted
// (202 PERSIST_FAILED) and reconciled in the background.
func (h *AssessmentHandler) Submit(c *gin.Context) {
	testID, ok := bindTestID(c)
	if !ok {
		return
	}

	submitted, state, err := h.svc.Submit(c.Request.Context(), middleware.TakerID(c), testID)
	data := gin.H{"submitted": submitted, "session": state}
	switch {
	case err == nil:
		response.Success(c, http.StatusOK, data)
	case errors.Is(err, model.ErrPersist):
		response.FailWithData(c, http.StatusAccepted, response.ErrPersistFailed, data)
	default:
		fail(c, h.log, err)
	}
}

// EnterReview godoc
// POST /api/v1/student/assessments/:test_id/review
func (h *AssessmentHandler) EnterReview(c *gin.Context) {
	testID, ok := bindTestID(c)
	if !ok {
		return
	}
	h.respondState(c)(h.svc.EnterReview(middleware.TakerID(c), testID))
}

// ExitReview godoc
// DELETE /api/v1/student/assessments/:test_id/review
func (h *AssessmentHandler) ExitReview(c *gin.Context) {
	testID, ok := bindTestID(c)
	if !ok {
		return
	}
	h.respondState(c)(h.svc.ExitReview(middleware.TakerID(c), testID))
}

// GetReview godoc
// GET /api/v1/student/assessments/:test_id/review
// Renders the review from the live session, or from the stored result
// when the test was completed earlier.
func (h *AssessmentHandler) GetReview(c *gin.Context) {
	testID, ok := bindTestID(c)
	if !ok {
		return
	}

	r, err := h.svc.Review(c.Request.Context(), middleware.TakerID(c), testID)
	if err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"review": r})
}

// Abandon godoc
// DELETE /api/v1/student/assessments/:test_id/session
// Leaves the attempt. An unsubmitted attempt is discarded.
func (h *AssessmentHandler) Abandon(c *gin.Context) {
	testID, ok := bindTestID(c)
	if !ok {
		return
	}
	if err := h.svc.Abandon(middleware.TakerID(c), testID); err != nil {
		fail(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"abandoned": true})
}

// ─── Helpers ───────────────────────────────────────────────────────

func (h *AssessmentHandler) respondState(c *gin.Context) func(session.ViewState, error) {
	return func(state session.ViewState, err error) {
		if err != nil {
			fail(c, h.log, err)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"session": state})
	}
}

func bindTestID(c *gin.Context) (uuid.UUID, bool) {
	var uri model.AssessmentURI
	if fields := validator.BindURI(c, &uri); fields != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(uri.TestID)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

func bindAnswerURI(c *gin.Context) (model.AnswerURI, uuid.UUID, bool) {
	var uri model.AnswerURI
	if fields := validator.BindURI(c, &uri); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return uri, uuid.Nil, false
	}
	id, err := uuid.Parse(uri.TestID)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uri, uuid.Nil, false
	}
	return uri, id, true
}
