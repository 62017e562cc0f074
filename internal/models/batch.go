package models

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxBatchSize caps how many files one submission may carry.
const MaxBatchSize = 10

// Batch holds the files accepted from one user submission. The record
// list is fixed at creation; only per-record status and ready variants
// change afterwards. All mutation goes through the Batch so the
// orchestrator and the reconciliation loop can share it safely.
type Batch struct {
	ID        string
	CreatedAt time.Time

	mu         sync.RWMutex
	records    []*FileRecord
	byName     map[string]*FileRecord
	resolvedAt *time.Time
}

// NewBatch creates a batch from the given records. The record count
// must be within [1, MaxBatchSize] and names must be unique.
func NewBatch(records []*FileRecord) (*Batch, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("batch must contain at least one file")
	}
	if len(records) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d files exceeds limit of %d", len(records), MaxBatchSize)
	}

	byName := make(map[string]*FileRecord, len(records))
	for _, r := range records {
		if _, dup := byName[r.Name]; dup {
			return nil, fmt.Errorf("duplicate file name in batch: %s", r.Name)
		}
		byName[r.Name] = r
	}

	return &Batch{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		records:   records,
		byName:    byName,
	}, nil
}

// NewFileRecord creates a queued record for a candidate file.
func NewFileRecord(name, contentType string, size int64) *FileRecord {
	return &FileRecord{
		Name:          name,
		ContentType:   contentType,
		Size:          size,
		Status:        StatusQueued,
		ReadyVariants: make([]Variant, 0, len(AllVariants)),
	}
}

// Len returns the number of files in the batch.
func (b *Batch) Len() int {
	return len(b.records)
}

// Record returns a copy of the named record.
func (b *Batch) Record(name string) (FileRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.byName[name]
	if !ok {
		return FileRecord{}, false
	}
	return copyRecord(r), true
}

// Records returns copies of all records in submission order.
func (b *Batch) Records() []FileRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]FileRecord, 0, len(b.records))
	for _, r := range b.records {
		out = append(out, copyRecord(r))
	}
	return out
}

// MarkUploading moves the named record from Queued to Uploading.
func (b *Batch) MarkUploading(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.advance(name, StatusUploading)
}

// MarkProcessing records a successful upload; the file joins the
// in-flight set and waits for its variants.
func (b *Batch) MarkProcessing(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.advance(name, StatusProcessing)
}

// MarkFailed records an upload failure. The record is terminal and
// never revisited by the reconciliation loop.
func (b *Batch) MarkFailed(name, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.advance(name, StatusError); err != nil {
		return err
	}
	b.byName[name].Error = reason
	return nil
}

// MarkVariantReady records that a variant was observed in the store.
// added is false when the variant was already known, so callers can
// suppress duplicate display events. completed is true when this
// observation finished the record's variant set.
func (b *Batch) MarkVariantReady(name string, v Variant) (added, completed bool, err error) {
	if !v.Valid() {
		return false, false, fmt.Errorf("unknown variant: %s", v)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.byName[name]
	if !ok {
		return false, false, fmt.Errorf("no such file in batch: %s", name)
	}
	if r.Status != StatusProcessing {
		return false, false, fmt.Errorf("file %s is %s, not processing", name, r.Status)
	}
	if r.HasVariant(v) {
		return false, false, nil
	}

	r.ReadyVariants = append(r.ReadyVariants, v)
	if len(r.ReadyVariants) == len(AllVariants) {
		if err := r.advance(StatusComplete); err != nil {
			return true, false, err
		}
		b.maybeResolve()
		return true, true, nil
	}
	return true, false, nil
}

// InFlight returns the names of files uploaded but not yet Complete or
// Error, in submission order.
func (b *Batch) InFlight() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var names []string
	for _, r := range b.records {
		if r.Status == StatusProcessing {
			names = append(names, r.Name)
		}
	}
	return names
}

// InFlightCount returns the size of the in-flight set.
func (b *Batch) InFlightCount() int {
	return len(b.InFlight())
}

// Resolved reports whether every record reached a terminal state.
func (b *Batch) Resolved() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.resolvedAt != nil
}

// ResolvedAt returns when the batch resolved, if it has.
func (b *Batch) ResolvedAt() (time.Time, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.resolvedAt == nil {
		return time.Time{}, false
	}
	return *b.resolvedAt, true
}

// Snapshot returns a consistent view of the batch for API responses.
func (b *Batch) Snapshot() BatchSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := BatchSnapshot{
		ID:        b.ID,
		CreatedAt: b.CreatedAt,
		Files:     make([]FileRecord, 0, len(b.records)),
		Total:     len(b.records),
	}
	for _, r := range b.records {
		if r.Status != StatusQueued && r.Status != StatusUploading {
			snap.Completed++
		}
		snap.Files = append(snap.Files, copyRecord(r))
	}
	if b.resolvedAt != nil {
		t := *b.resolvedAt
		snap.Resolved = true
		snap.ResolvedAt = &t
	}
	return snap
}

// BatchSnapshot is the JSON view of a batch.
type BatchSnapshot struct {
	ID         string       `json:"id"`
	CreatedAt  time.Time    `json:"createdAt"`
	Files      []FileRecord `json:"files"`
	Completed  int          `json:"completed"`
	Total      int          `json:"total"`
	Resolved   bool         `json:"resolved"`
	ResolvedAt *time.Time   `json:"resolvedAt,omitempty"`
}

func (b *Batch) advance(name string, next FileStatus) error {
	r, ok := b.byName[name]
	if !ok {
		return fmt.Errorf("no such file in batch: %s", name)
	}
	if err := r.advance(next); err != nil {
		return err
	}
	if next.Terminal() {
		b.maybeResolve()
	}
	return nil
}

// maybeResolve stamps the batch once every record is terminal.
// Callers must hold b.mu.
func (b *Batch) maybeResolve() {
	if b.resolvedAt != nil {
		return
	}
	for _, r := range b.records {
		if !r.Status.Terminal() {
			return
		}
	}
	now := time.Now()
	b.resolvedAt = &now
}

func copyRecord(r *FileRecord) FileRecord {
	c := *r
	c.ReadyVariants = append([]Variant(nil), r.ReadyVariants...)
	return c
}
