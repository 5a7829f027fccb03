package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	syncapp "github.com/erp/crmsync/internal/application/integration"
	"github.com/erp/crmsync/internal/domain/integration"
	"github.com/erp/crmsync/internal/interfaces/http/dto"
)

// defaultListLimit is used when the limit query parameter is absent
const defaultListLimit = 20

// SyncRunService starts and reads sync runs
type SyncRunService interface {
	Start(ctx context.Context, opts syncapp.RunOptions) (*integration.RunSummary, error)
	GetRun(ctx context.Context, id uuid.UUID) (*integration.RunSummary, error)
	ListRuns(ctx context.Context, limit int) ([]*integration.RunSummary, error)
}

// SyncRunHandler handles the sync run endpoints
type SyncRunHandler struct {
	BaseHandler
	service SyncRunService
}

// NewSyncRunHandler creates a new SyncRunHandler
func NewSyncRunHandler(service SyncRunService) *SyncRunHandler {
	return &SyncRunHandler{service: service}
}

// ListRuns returns the most recent runs, newest first
func (h *SyncRunHandler) ListRuns(c *gin.Context) {
	var query dto.ListSyncRunsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, err.Error())
		return
	}
	if query.Limit == 0 {
		query.Limit = defaultListLimit
	}

	runs, err := h.service.ListRuns(c.Request.Context(), query.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewListResponse(dto.ToSyncRunResponses(runs), len(runs), query.Limit))
}

// GetRun returns one run by id
func (h *SyncRunHandler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid run ID format")
		return
	}

	run, err := h.service.GetRun(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToSyncRunResponse(run))
}

// TriggerRun starts a run in the background and answers 202 with its id.
// A run already in flight answers 409.
func (h *SyncRunHandler) TriggerRun(c *gin.Context) {
	var req dto.TriggerSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, err.Error())
		return
	}

	opts := syncapp.DefaultRunOptions(integration.RunTriggerAPI)
	opts.Customers = enabled(req.Customers)
	opts.Quotes = enabled(req.Quotes)
	opts.Orders = enabled(req.Orders)
	opts.CustomerFilter = req.CustomerFilter
	opts.QuoteFilter = req.QuoteFilter
	opts.OrderFilter = req.OrderFilter

	if !opts.Customers && !opts.Quotes && !opts.Orders {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, "at least one phase must be enabled")
		return
	}

	run, err := h.service.Start(c.Request.Context(), opts)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, dto.ToSyncRunResponse(run))
}

func enabled(flag *bool) bool {
	return flag == nil || *flag
}
