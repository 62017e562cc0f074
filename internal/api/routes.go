// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snapbatch/backend/internal/batch"
	"github.com/snapbatch/backend/internal/history"
	"github.com/snapbatch/backend/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Orchestrator *batch.Orchestrator
	Registry     *batch.Registry
	Store        storage.ObjectStore
	LocalStore   *storage.LocalStore // nil with the http backend
	Recorder     *history.Recorder
	Hub          *EventHub
	Version      string
}

// Handlers holds all handler instances
type Handlers struct {
	Health  HealthHandler
	Batch   BatchHandler
	Object  ObjectHandler
	History HistoryHandler
	Hub     *EventHub
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:  NewHealthHandler(deps.Version),
		Batch:   NewBatchHandler(deps.Orchestrator, deps.Registry, deps.Store),
		Object:  NewObjectHandler(deps.LocalStore),
		History: NewHistoryHandler(deps.Recorder),
		Hub:     deps.Hub,
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/health", handlers.Health.HandleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	batchGroup := e.Group("/api/batches")
	batchGroup.POST("", handlers.Batch.HandleSubmitBatch)
	batchGroup.GET("", handlers.Batch.HandleListBatches)
	batchGroup.GET("/:id", handlers.Batch.HandleGetBatch)
	batchGroup.GET("/:id/variants", handlers.Batch.HandleGetBatchVariants)

	e.GET("/api/objects/*", handlers.Object.HandleGetObject)
	e.GET("/api/history", handlers.History.HandleListHistory)

	if handlers.Hub != nil {
		e.GET("/ws/batches/:id", handlers.Hub.HandleSubscribe)
	}
}
