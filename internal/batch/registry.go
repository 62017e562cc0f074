package batch

import (
	"sync"
	"time"

	"github.com/snapbatch/backend/internal/models"
)

// Registry keeps live batches addressable by ID so the API can serve
// snapshots while uploads and reconciliation are still running.
// Batches are scoped to their submission; resolved ones are swept out
// after a retention window.
type Registry struct {
	mu      sync.RWMutex
	batches map[string]*models.Batch
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{batches: make(map[string]*models.Batch)}
}

// Add registers a batch.
func (r *Registry) Add(b *models.Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.batches[b.ID]; ok {
		return
	}
	r.batches[b.ID] = b
	r.order = append(r.order, b.ID)
}

// Get returns the batch with the given ID.
func (r *Registry) Get(id string) (*models.Batch, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.batches[id]
	return b, ok
}

// Recent returns up to limit batches, newest first.
func (r *Registry) Recent(limit int) []*models.Batch {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Batch
	for i := len(r.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if b, ok := r.batches[r.order[i]]; ok {
			out = append(out, b)
		}
	}
	return out
}

// CleanupResolved drops batches that resolved more than maxAge ago and
// returns how many were removed. Unresolved batches are never touched.
func (r *Registry) CleanupResolved(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	kept := r.order[:0]
	for _, id := range r.order {
		b, ok := r.batches[id]
		if !ok {
			continue
		}
		if at, resolved := b.ResolvedAt(); resolved && at.Before(cutoff) {
			delete(r.batches, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return removed
}

// Len returns the number of registered batches.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.batches)
}
