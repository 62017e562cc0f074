// loop_test.go - Tests for the artifact reconciliation loop
package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/snapbatch/backend/internal/models"
	"github.com/snapbatch/backend/internal/storage"
	"github.com/snapbatch/backend/internal/testutil"
)

// recordingNotifier captures reconciliation events.
type recordingNotifier struct {
	mu       sync.Mutex
	events   []models.VariantEvent
	resolved int
}

func (n *recordingNotifier) OnVariantReady(batchID string, ev models.VariantEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) OnBatchResolved(b *models.Batch) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resolved++
}

func (n *recordingNotifier) eventCount(file string, v models.Variant) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, ev := range n.events {
		if ev.File == file && ev.Variant == v {
			count++
		}
	}
	return count
}

// inFlightBatch builds a batch whose files already uploaded.
func inFlightBatch(t *testing.T, names ...string) *models.Batch {
	t.Helper()
	records := make([]*models.FileRecord, 0, len(names))
	for _, n := range names {
		records = append(records, models.NewFileRecord(n, "image/jpeg", 1))
	}
	b, err := models.NewBatch(records)
	if err != nil {
		t.Fatalf("Failed to create batch: %v", err)
	}
	for _, n := range names {
		if err := b.MarkUploading(n); err != nil {
			t.Fatal(err)
		}
		if err := b.MarkProcessing(n); err != nil {
			t.Fatal(err)
		}
	}
	return b
}

func fastLoop(store storage.ObjectStore, n Notifier, maxCycles int) *Loop {
	return New(store, n, nil, Options{
		GraceDelay: time.Millisecond,
		Interval:   2 * time.Millisecond,
		MaxCycles:  maxCycles,
	})
}

func seedAllVariants(store *testutil.MockObjectStore, name string) {
	for _, v := range models.AllVariants {
		store.Seed(storage.DerivedKey(v, name), []byte("img"))
	}
}

func TestLoop_Run(t *testing.T) {
	t.Run("completes a file once all variants exist", func(t *testing.T) {
		store := testutil.NewMockObjectStore()
		seedAllVariants(store, "a.jpg")
		notifier := &recordingNotifier{}
		b := inFlightBatch(t, "a.jpg")

		fastLoop(store, notifier, 0).Run(context.Background(), b)

		rec, _ := b.Record("a.jpg")
		if rec.Status != models.StatusComplete {
			t.Errorf("Expected complete, got %v", rec.Status)
		}
		if b.InFlightCount() != 0 {
			t.Errorf("Expected empty in-flight set, got %d", b.InFlightCount())
		}
		if notifier.resolved != 1 {
			t.Errorf("Expected exactly one resolution event, got %d", notifier.resolved)
		}
		for _, v := range models.AllVariants {
			if got := notifier.eventCount("a.jpg", v); got != 1 {
				t.Errorf("Expected 1 display event for %v, got %d", v, got)
			}
		}
	})

	t.Run("partial variants keep the file processing", func(t *testing.T) {
		store := testutil.NewMockObjectStore()
		store.Seed(storage.DerivedKey(models.VariantThumbnail, "a.jpg"), []byte("img"))
		notifier := &recordingNotifier{}
		b := inFlightBatch(t, "a.jpg")

		fastLoop(store, notifier, 3).Run(context.Background(), b)

		rec, _ := b.Record("a.jpg")
		if rec.Status != models.StatusProcessing {
			t.Errorf("Expected processing, got %v", rec.Status)
		}
		if got := notifier.eventCount("a.jpg", models.VariantThumbnail); got != 1 {
			t.Errorf("Expected exactly 1 thumbnail event across cycles, got %d", got)
		}
		if notifier.resolved != 0 {
			t.Errorf("Expected no resolution, got %d", notifier.resolved)
		}

		// The observed variant is not probed again; the missing ones are.
		thumbKey := storage.DerivedKey(models.VariantThumbnail, "a.jpg")
		if got := store.HeadCount(thumbKey); got != 1 {
			t.Errorf("Expected thumbnail probed once, got %d", got)
		}
		webKey := storage.DerivedKey(models.VariantWeb, "a.jpg")
		if got := store.HeadCount(webKey); got != 3 {
			t.Errorf("Expected web probed every cycle (3), got %d", got)
		}
	})

	t.Run("probe errors are retried like misses", func(t *testing.T) {
		store := testutil.NewMockObjectStore()
		seedAllVariants(store, "a.jpg")
		thumbKey := storage.DerivedKey(models.VariantThumbnail, "a.jpg")
		store.HeadErrs[thumbKey] = errors.New("gateway timeout")
		notifier := &recordingNotifier{}
		b := inFlightBatch(t, "a.jpg")

		fastLoop(store, notifier, 2).Run(context.Background(), b)

		rec, _ := b.Record("a.jpg")
		if rec.Status != models.StatusProcessing {
			t.Errorf("Expected processing while a probe keeps failing, got %v", rec.Status)
		}
		if got := store.HeadCount(thumbKey); got != 2 {
			t.Errorf("Expected failing key re-probed each cycle, got %d", got)
		}

		// Once the store recovers the file completes.
		delete(store.HeadErrs, thumbKey)
		fastLoop(store, notifier, 0).Run(context.Background(), b)
		rec, _ = b.Record("a.jpg")
		if rec.Status != models.StatusComplete {
			t.Errorf("Expected complete after recovery, got %v", rec.Status)
		}
	})

	t.Run("only in-flight files are probed", func(t *testing.T) {
		store := testutil.NewMockObjectStore()
		seedAllVariants(store, "b.jpg")

		records := []*models.FileRecord{
			models.NewFileRecord("a.jpg", "image/jpeg", 1),
			models.NewFileRecord("b.jpg", "image/jpeg", 1),
		}
		b, err := models.NewBatch(records)
		if err != nil {
			t.Fatal(err)
		}
		b.MarkUploading("a.jpg")
		b.MarkFailed("a.jpg", "upload failed")
		b.MarkUploading("b.jpg")
		b.MarkProcessing("b.jpg")

		notifier := &recordingNotifier{}
		fastLoop(store, notifier, 0).Run(context.Background(), b)

		for _, v := range models.AllVariants {
			if got := store.HeadCount(storage.DerivedKey(v, "a.jpg")); got != 0 {
				t.Errorf("Errored file must not be probed, got %d probes for %v", got, v)
			}
		}
		if !b.Resolved() {
			t.Error("Expected batch resolved once b.jpg completed")
		}
	})

	t.Run("stops when the cycle budget is spent", func(t *testing.T) {
		store := testutil.NewMockObjectStore()
		notifier := &recordingNotifier{}
		b := inFlightBatch(t, "a.jpg")

		done := make(chan struct{})
		go func() {
			fastLoop(store, notifier, 2).Run(context.Background(), b)
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Loop did not stop at its cycle budget")
		}
		if notifier.resolved != 0 {
			t.Errorf("Budget exhaustion must not resolve the batch, got %d", notifier.resolved)
		}
	})

	t.Run("cancellation stops an unbounded loop", func(t *testing.T) {
		store := testutil.NewMockObjectStore()
		b := inFlightBatch(t, "a.jpg")

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			fastLoop(store, &recordingNotifier{}, 0).Run(ctx, b)
			close(done)
		}()

		time.Sleep(10 * time.Millisecond)
		cancel()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Loop did not stop on cancellation")
		}
	})

	t.Run("resolves immediately with nothing in flight", func(t *testing.T) {
		store := testutil.NewMockObjectStore()
		notifier := &recordingNotifier{}

		b, err := models.NewBatch([]*models.FileRecord{models.NewFileRecord("a.jpg", "image/jpeg", 1)})
		if err != nil {
			t.Fatal(err)
		}
		b.MarkUploading("a.jpg")
		b.MarkFailed("a.jpg", "boom")

		fastLoop(store, notifier, 0).Run(context.Background(), b)

		if store.PutCount() != 0 || len(store.HeadCalls) != 0 {
			t.Error("Expected no store calls for an empty in-flight set")
		}
		if notifier.resolved != 1 {
			t.Errorf("Expected one resolution event, got %d", notifier.resolved)
		}
	})
}
