package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/capture"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// SessionHandler exposes exam session controllers to the UI.
type SessionHandler struct {
	manager *session.Manager
	log     zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(manager *session.Manager, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		manager: manager,
		log:     log.With().Str("component", "session_handler").Logger(),
	}
}

type frameRequest struct {
	Image string `json:"image" binding:"required"`
}

// StartSession godoc
// POST /api/v1/sessions
// Loads the exam and starts the countdown and proctoring loop.
// Responds 409 with the route to show when the exam cannot be taken.
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctrl, err := h.manager.Start(c.Request.Context(), req.ExamID, req.Exam)
	if err != nil {
		var redirect *session.RedirectError
		if errors.As(err, &redirect) {
			code := response.ErrExamLoadFailed
			if redirect.Kind == session.RedirectFaceRegistration {
				code = response.ErrFaceNotRegistered
			}
			response.FailWithData(c, http.StatusConflict, code, gin.H{
				"session_id": ctrl.ID(),
				"route":      redirect.Route,
			})
			return
		}
		h.log.Error().Err(err).Str("exam_id", req.ExamID).Msg("Failed to start session")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, ctrl.Snapshot())
}

// GetSession godoc
// GET /api/v1/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, ctrl.Snapshot())
}

// SelectAnswer godoc
// POST /api/v1/sessions/:id/answers
// Records an answer. The last selection for a question wins.
func (h *SessionHandler) SelectAnswer(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}

	var req model.SelectAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := ctrl.SelectAnswer(*req.QuestionIndex, *req.OptionIndex); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, ctrl.Snapshot())
}

// Next godoc
// POST /api/v1/sessions/:id/next
func (h *SessionHandler) Next(c *gin.Context) {
	h.navigate(c, (*session.Controller).GoNext)
}

// Previous godoc
// POST /api/v1/sessions/:id/previous
func (h *SessionHandler) Previous(c *gin.Context) {
	h.navigate(c, (*session.Controller).GoPrevious)
}

// GoTo godoc
// POST /api/v1/sessions/:id/goto
// Jumps to a question; out-of-range indexes are clamped.
func (h *SessionHandler) GoTo(c *gin.Context) {
	var req model.GoToRequest
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if _, err := ctrl.GoTo(*req.Index); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, ctrl.Snapshot())
}

func (h *SessionHandler) navigate(c *gin.Context, move func(*session.Controller) (int, error)) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}
	if _, err := move(ctrl); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, ctrl.Snapshot())
}

// Submit godoc
// POST /api/v1/sessions/:id/submit
// Ends the attempt. Repeated calls return the same result.
func (h *SessionHandler) Submit(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}

	result, err := ctrl.Submit(c.Request.Context(), model.EndReasonManual)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// GetResult godoc
// GET /api/v1/sessions/:id/result
func (h *SessionHandler) GetResult(c *gin.Context) {
	ctrl, ok := h.lookup(c)
	if !ok {
		return
	}

	result := ctrl.Result()
	if result == nil {
		response.Fail(c, http.StatusConflict, response.ErrResultNotReady)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// PutFrame godoc
// POST /api/v1/sessions/:id/frames
// Stores the UI's latest camera frame for the next capture tick.
func (h *SessionHandler) PutFrame(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	var req frameRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.manager.PutFrame(id, req.Image); err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNoSession)
		case errors.Is(err, session.ErrExternalSource):
			response.Fail(c, http.StatusConflict, response.ErrExternalCamera)
		case errors.Is(err, capture.ErrFileTooLarge):
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
		case errors.Is(err, capture.ErrUnsupportedFileType):
			response.Fail(c, http.StatusUnsupportedMediaType, response.ErrUnsupportedFile)
		default:
			response.FailWithFields(c, http.StatusBadRequest, response.ErrFrameRejected, map[string]string{"image": err.Error()})
		}
		return
	}
	c.Status(http.StatusNoContent)
}

// CloseSession godoc
// DELETE /api/v1/sessions/:id
// Abandons the attempt without submitting.
func (h *SessionHandler) CloseSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	if err := h.manager.Close(id); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

func (h *SessionHandler) lookup(c *gin.Context) (*session.Controller, bool) {
	id, ok := sessionID(c)
	if !ok {
		return nil, false
	}
	ctrl, err := h.manager.Get(id)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNoSession)
		return nil, false
	}
	return ctrl, true
}

func (h *SessionHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNoSession)
	case errors.Is(err, session.ErrNotActive):
		response.Fail(c, http.StatusConflict, response.ErrSessionNotActive)
	case errors.Is(err, session.ErrQuestionOutOfRange), errors.Is(err, session.ErrOptionOutOfRange):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidAnswer, map[string]string{"detail": err.Error()})
	default:
		h.log.Error().Err(err).Msg("Session operation failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// sessionID validates the :id path parameter.
func sessionID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return "", false
	}
	return id, true
}
