// handlers_batch.go - Batch submission and inspection handlers
package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/snapbatch/backend/internal/batch"
	"github.com/snapbatch/backend/internal/models"
	"github.com/snapbatch/backend/internal/storage"
)

// BatchHandlerImpl implements the BatchHandler interface
type BatchHandlerImpl struct {
	orchestrator *batch.Orchestrator
	registry     *batch.Registry
	store        storage.ObjectStore
}

// NewBatchHandler creates a new batch handler instance
func NewBatchHandler(orchestrator *batch.Orchestrator, registry *batch.Registry, store storage.ObjectStore) BatchHandler {
	return &BatchHandlerImpl{
		orchestrator: orchestrator,
		registry:     registry,
		store:        store,
	}
}

// HandleSubmitBatch accepts a multipart selection under the "files"
// field and submits it. Uploads run sequentially inside the request so
// validation and upload errors reach the caller synchronously.
func (h *BatchHandlerImpl) HandleSubmitBatch(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return NewBadRequestError("expected multipart form data", err)
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return NewEmptySelectionError()
	}

	candidates := make([]batch.Candidate, 0, len(headers))
	for _, fh := range headers {
		src, err := fh.Open()
		if err != nil {
			return NewInternalError("could not read uploaded file", err)
		}
		defer src.Close()

		candidates = append(candidates, batch.Candidate{
			Name:        filepath.Base(fh.Filename),
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Reader:      src,
		})
	}

	b, err := h.orchestrator.Submit(c.Request().Context(), candidates)
	switch {
	case errors.Is(err, batch.ErrEmptySelection):
		return NewEmptySelectionError()
	case errors.Is(err, batch.ErrBatchTooLarge):
		return NewBatchTooLargeError(models.MaxBatchSize)
	case err != nil:
		return NewBadRequestError("invalid selection", err)
	}

	return c.JSON(http.StatusCreated, b.Snapshot())
}

// HandleGetBatch returns the current snapshot of a batch
func (h *BatchHandlerImpl) HandleGetBatch(c echo.Context) error {
	b, ok := h.registry.Get(c.Param("id"))
	if !ok {
		return NewNotFoundError("batch", c.Param("id"))
	}
	return c.JSON(http.StatusOK, b.Snapshot())
}

// HandleGetBatchVariants returns display events for every variant
// observed so far, with fresh display-TTL signed URLs
func (h *BatchHandlerImpl) HandleGetBatchVariants(c echo.Context) error {
	b, ok := h.registry.Get(c.Param("id"))
	if !ok {
		return NewNotFoundError("batch", c.Param("id"))
	}

	events := make([]models.VariantEvent, 0)
	for _, rec := range b.Records() {
		for _, v := range rec.ReadyVariants {
			url, err := h.store.SignedURL(storage.DerivedKey(v, rec.Name), storage.DisplayURLTTL)
			if err != nil {
				return NewInternalError("could not sign display url", err)
			}
			events = append(events, models.VariantEvent{File: rec.Name, Variant: v, URL: url})
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"batchId":  b.ID,
		"variants": events,
	})
}

// HandleListBatches returns recent batch snapshots, newest first
func (h *BatchHandlerImpl) HandleListBatches(c echo.Context) error {
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	snaps := make([]models.BatchSnapshot, 0)
	for _, b := range h.registry.Recent(limit) {
		snaps = append(snaps, b.Snapshot())
	}
	return c.JSON(http.StatusOK, snaps)
}
