// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import "github.com/labstack/echo/v4"

// BatchHandler handles batch submission and inspection
type BatchHandler interface {
	HandleSubmitBatch(c echo.Context) error
	HandleGetBatch(c echo.Context) error
	HandleGetBatchVariants(c echo.Context) error
	HandleListBatches(c echo.Context) error
}

// ObjectHandler serves locally stored objects behind signed URLs
type ObjectHandler interface {
	HandleGetObject(c echo.Context) error
}

// HistoryHandler exposes the resolved-batch ledger
type HistoryHandler interface {
	HandleListHistory(c echo.Context) error
}

// HealthHandler reports server health
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}
