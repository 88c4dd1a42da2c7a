package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

const (
	defaultHistoryPerPage = 20
	maxHistoryPerPage     = 100
)

// HistoryLister reads journaled attempts.
type HistoryLister interface {
	ListRecent(ctx context.Context, limit, offset int) ([]model.Result, int, error)
}

// HistoryHandler serves past attempts from the journal database.
type HistoryHandler struct {
	repo HistoryLister
	log  zerolog.Logger
}

// NewHistoryHandler creates a HistoryHandler. repo may be nil when the
// journal database is not configured.
func NewHistoryHandler(repo HistoryLister, log zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{
		repo: repo,
		log:  log.With().Str("component", "history_handler").Logger(),
	}
}

// ListHistory godoc
// GET /api/v1/history?page=1&per_page=20
// Lists submitted attempts, newest first.
func (h *HistoryHandler) ListHistory(c *gin.Context) {
	if h.repo == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrJournalDisabled)
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"page": "page must be a positive integer"})
		return
	}
	perPage, err := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultHistoryPerPage)))
	if err != nil || perPage < 1 {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"per_page": "per_page must be a positive integer"})
		return
	}
	perPage = min(perPage, maxHistoryPerPage)

	results, total, err := h.repo.ListRecent(c.Request.Context(), perPage, (page-1)*perPage)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list history")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"attempts": results}, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	})
}
