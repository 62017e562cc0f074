// Package batch validates user selections and drives their uploads.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/snapbatch/backend/internal/metrics"
	"github.com/snapbatch/backend/internal/models"
	"github.com/snapbatch/backend/internal/reconcile"
	"github.com/snapbatch/backend/internal/storage"
)

// Validation errors, surfaced before any store call.
var (
	ErrEmptySelection = errors.New("selection contains no image files")
	ErrBatchTooLarge  = fmt.Errorf("selection exceeds the limit of %d files", models.MaxBatchSize)
)

// Candidate is one file offered for submission.
type Candidate struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// Observer receives upload-side events. The reconciliation loop has
// its own notifier; API surfaces usually implement both.
type Observer interface {
	// OnProgress fires after every settled file, success or failure.
	OnProgress(batchID string, p models.Progress)

	// OnFileError fires when one file's upload fails. The batch
	// continues with its remaining files.
	OnFileError(batchID, file, reason string)
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) OnProgress(string, models.Progress) {}
func (NopObserver) OnFileError(string, string, string) {}

// MultiObserver fans events out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) OnProgress(batchID string, p models.Progress) {
	for _, o := range m {
		o.OnProgress(batchID, p)
	}
}

func (m MultiObserver) OnFileError(batchID, file, reason string) {
	for _, o := range m {
		o.OnFileError(batchID, file, reason)
	}
}

// Orchestrator turns a selection into a batch, uploads its files
// sequentially and hands the survivors to the reconciliation loop.
type Orchestrator struct {
	runCtx   context.Context
	store    storage.ObjectStore
	loop     *reconcile.Loop
	registry *Registry
	obs      Observer
	logger   *log.Logger
}

// NewOrchestrator creates an orchestrator. runCtx outlives individual
// submissions and bounds the reconciliation loops it schedules;
// cancelling it stops all polling.
func NewOrchestrator(runCtx context.Context, store storage.ObjectStore, loop *reconcile.Loop, registry *Registry, obs Observer, logger *log.Logger) *Orchestrator {
	if runCtx == nil {
		runCtx = context.Background()
	}
	if obs == nil {
		obs = NopObserver{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{
		runCtx:   runCtx,
		store:    store,
		loop:     loop,
		registry: registry,
		obs:      obs,
		logger:   logger,
	}
}

// Submit validates the selection, uploads the accepted files one at a
// time and schedules reconciliation for the batch. Validation errors
// abort the whole submission before any network call; a single failed
// upload does not.
func (o *Orchestrator) Submit(ctx context.Context, selection []Candidate) (*models.Batch, error) {
	accepted := filterImages(selection, o.logger)
	if len(accepted) == 0 {
		metrics.BatchesTotal.WithLabelValues("rejected").Inc()
		return nil, ErrEmptySelection
	}
	if len(accepted) > models.MaxBatchSize {
		metrics.BatchesTotal.WithLabelValues("rejected").Inc()
		return nil, ErrBatchTooLarge
	}

	records := make([]*models.FileRecord, 0, len(accepted))
	for _, c := range accepted {
		records = append(records, models.NewFileRecord(c.Name, c.ContentType, c.Size))
	}
	b, err := models.NewBatch(records)
	if err != nil {
		metrics.BatchesTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("invalid selection: %w", err)
	}

	metrics.BatchesTotal.WithLabelValues("accepted").Inc()
	if o.registry != nil {
		o.registry.Add(b)
	}

	logger := o.logger.With("batch", shortID(b.ID))
	logger.Info("batch accepted", "files", b.Len())

	// Uploads are strictly sequential: bounded load on the store and
	// a deterministic progress sequence.
	total := b.Len()
	for i, c := range accepted {
		o.uploadOne(ctx, b, c, logger)
		o.obs.OnProgress(b.ID, models.Progress{Completed: i + 1, Total: total})
	}

	if o.loop != nil {
		o.loop.Schedule(o.runCtx, b)
	}
	return b, nil
}

func (o *Orchestrator) uploadOne(ctx context.Context, b *models.Batch, c Candidate, logger *log.Logger) {
	if err := b.MarkUploading(c.Name); err != nil {
		logger.Error("could not start upload", "file", c.Name, "err", err)
		return
	}

	if err := o.store.Put(ctx, c.Name, c.Reader, c.ContentType); err != nil {
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		logger.Error("upload failed", "file", c.Name, "err", err)
		if merr := b.MarkFailed(c.Name, err.Error()); merr != nil {
			logger.Error("could not record upload failure", "file", c.Name, "err", merr)
		}
		o.obs.OnFileError(b.ID, c.Name, err.Error())
		return
	}

	metrics.UploadsTotal.WithLabelValues("ok").Inc()
	if err := b.MarkProcessing(c.Name); err != nil {
		logger.Error("could not record upload success", "file", c.Name, "err", err)
		return
	}
	metrics.InFlightFiles.Inc()
	logger.Info("uploaded", "file", c.Name, "bytes", c.Size)
}

// filterImages keeps candidates whose declared media type is an image.
// Names that would land in the worker's derived namespace are dropped
// too: the worker ignores them and they would poll forever.
func filterImages(selection []Candidate, logger *log.Logger) []Candidate {
	accepted := make([]Candidate, 0, len(selection))
	for _, c := range selection {
		switch {
		case c.Name == "":
			logger.Debug("dropping candidate with empty name")
		case !strings.HasPrefix(c.ContentType, "image/"):
			logger.Debug("dropping non-image candidate", "file", c.Name, "type", c.ContentType)
		case strings.HasPrefix(c.Name, storage.DerivedPrefix):
			logger.Warn("dropping candidate inside derived namespace", "file", c.Name)
		default:
			accepted = append(accepted, c)
		}
	}
	return accepted
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
