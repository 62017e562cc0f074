// handlers_history.go - Resolved-batch ledger handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/snapbatch/backend/internal/history"
)

// HistoryHandlerImpl implements the HistoryHandler interface
type HistoryHandlerImpl struct {
	recorder *history.Recorder
}

// NewHistoryHandler creates a new history handler instance
func NewHistoryHandler(recorder *history.Recorder) HistoryHandler {
	return &HistoryHandlerImpl{recorder: recorder}
}

// HandleListHistory returns recently resolved batch summaries
func (h *HistoryHandlerImpl) HandleListHistory(c echo.Context) error {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	summaries, err := h.recorder.List(limit)
	if err != nil {
		return NewInternalError("could not read history", err)
	}
	return c.JSON(http.StatusOK, summaries)
}
