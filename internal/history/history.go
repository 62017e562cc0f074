// Package history keeps a local ledger of resolved batches. The
// processing side owns real notification delivery; this is the
// client's durable record of what resolved and when.
package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/snapbatch/backend/internal/models"
)

// BatchSummary is the persisted record of one resolved batch.
type BatchSummary struct {
	ID          string        `msgpack:"id" json:"id"`
	SubmittedAt time.Time     `msgpack:"submitted_at" json:"submittedAt"`
	ResolvedAt  time.Time     `msgpack:"resolved_at" json:"resolvedAt"`
	Files       []FileSummary `msgpack:"files" json:"files"`
}

// FileSummary is the terminal state of one file.
type FileSummary struct {
	Name     string           `msgpack:"name" json:"name"`
	Status   models.FileStatus `msgpack:"status" json:"status"`
	Variants []models.Variant `msgpack:"variants" json:"variants"`
	Error    string           `msgpack:"error,omitempty" json:"error,omitempty"`
}

// Recorder appends batch summaries to a directory, one msgpack file
// per batch.
type Recorder struct {
	dir    string
	logger *log.Logger
	mu     sync.Mutex
}

// NewRecorder creates a recorder writing under dir.
func NewRecorder(dir string, logger *log.Logger) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{dir: dir, logger: logger}, nil
}

// OnVariantReady is a no-op; the recorder only cares about resolution.
func (r *Recorder) OnVariantReady(string, models.VariantEvent) {}

// OnBatchResolved persists the batch summary. Failures are logged and
// swallowed: the ledger must never disturb the engine.
func (r *Recorder) OnBatchResolved(b *models.Batch) {
	if err := r.Record(b); err != nil {
		r.logger.Error("could not record batch history", "batch", b.ID, "err", err)
	}
}

// Record writes the summary for a batch.
func (r *Recorder) Record(b *models.Batch) error {
	snap := b.Snapshot()
	summary := BatchSummary{
		ID:          snap.ID,
		SubmittedAt: snap.CreatedAt,
		Files:       make([]FileSummary, 0, len(snap.Files)),
	}
	if snap.ResolvedAt != nil {
		summary.ResolvedAt = *snap.ResolvedAt
	} else {
		summary.ResolvedAt = time.Now()
	}
	for _, f := range snap.Files {
		summary.Files = append(summary.Files, FileSummary{
			Name:     f.Name,
			Status:   f.Status,
			Variants: f.ReadyVariants,
			Error:    f.Error,
		})
	}

	data, err := msgpack.Marshal(&summary)
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	path := filepath.Join(r.dir, "batch_"+summary.ID+".msgpack")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

// List returns up to limit summaries, newest resolution first.
func (r *Recorder) List(limit int) ([]BatchSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("reading history directory: %w", err)
	}

	var out []BatchSummary
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "batch_") || filepath.Ext(name) != ".msgpack" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.dir, name))
		if err != nil {
			r.logger.Warn("skipping unreadable history entry", "entry", name, "err", err)
			continue
		}
		var s BatchSummary
		if err := msgpack.Unmarshal(data, &s); err != nil {
			r.logger.Warn("skipping corrupt history entry", "entry", name, "err", err)
			continue
		}
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].ResolvedAt.After(out[j].ResolvedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
