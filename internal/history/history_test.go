package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/snapbatch/backend/internal/models"
)

func resolvedBatch(t *testing.T, name string) *models.Batch {
	t.Helper()
	b, err := models.NewBatch([]*models.FileRecord{models.NewFileRecord(name, "image/jpeg", 1)})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.MarkUploading(name); err != nil {
		t.Fatal(err)
	}
	if err := b.MarkProcessing(name); err != nil {
		t.Fatal(err)
	}
	for _, v := range models.AllVariants {
		if _, _, err := b.MarkVariantReady(name, v); err != nil {
			t.Fatal(err)
		}
	}
	return b
}

func TestRecorder(t *testing.T) {
	t.Run("records and lists a resolved batch", func(t *testing.T) {
		r, err := NewRecorder(t.TempDir(), nil)
		if err != nil {
			t.Fatalf("Failed to create recorder: %v", err)
		}

		b := resolvedBatch(t, "a.jpg")
		r.OnBatchResolved(b)

		summaries, err := r.List(0)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(summaries) != 1 {
			t.Fatalf("Expected 1 summary, got %d", len(summaries))
		}

		s := summaries[0]
		if s.ID != b.ID {
			t.Errorf("Expected batch ID %s, got %s", b.ID, s.ID)
		}
		if s.ResolvedAt.IsZero() {
			t.Error("Expected a resolution timestamp")
		}
		if len(s.Files) != 1 {
			t.Fatalf("Expected 1 file, got %d", len(s.Files))
		}
		f := s.Files[0]
		if f.Name != "a.jpg" || f.Status != models.StatusComplete {
			t.Errorf("Unexpected file summary %+v", f)
		}
		if len(f.Variants) != len(models.AllVariants) {
			t.Errorf("Expected all variants recorded, got %v", f.Variants)
		}
	})

	t.Run("records failed files with their reason", func(t *testing.T) {
		r, err := NewRecorder(t.TempDir(), nil)
		if err != nil {
			t.Fatal(err)
		}

		b, err := models.NewBatch([]*models.FileRecord{models.NewFileRecord("bad.jpg", "image/jpeg", 1)})
		if err != nil {
			t.Fatal(err)
		}
		b.MarkUploading("bad.jpg")
		b.MarkFailed("bad.jpg", "connection reset")

		if err := r.Record(b); err != nil {
			t.Fatalf("Record failed: %v", err)
		}

		summaries, err := r.List(0)
		if err != nil {
			t.Fatal(err)
		}
		f := summaries[0].Files[0]
		if f.Status != models.StatusError || f.Error != "connection reset" {
			t.Errorf("Unexpected file summary %+v", f)
		}
	})

	t.Run("lists newest resolution first with a limit", func(t *testing.T) {
		dir := t.TempDir()
		r, err := NewRecorder(dir, nil)
		if err != nil {
			t.Fatal(err)
		}

		var ids []string
		for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
			b := resolvedBatch(t, name)
			ids = append(ids, b.ID)
			if err := r.Record(b); err != nil {
				t.Fatal(err)
			}
			time.Sleep(5 * time.Millisecond)
		}

		summaries, err := r.List(2)
		if err != nil {
			t.Fatal(err)
		}
		if len(summaries) != 2 {
			t.Fatalf("Expected 2 summaries, got %d", len(summaries))
		}
		if summaries[0].ID != ids[2] || summaries[1].ID != ids[1] {
			t.Errorf("Expected newest-first order, got %s then %s", summaries[0].ID, summaries[1].ID)
		}
	})

	t.Run("skips corrupt entries", func(t *testing.T) {
		dir := t.TempDir()
		r, err := NewRecorder(dir, nil)
		if err != nil {
			t.Fatal(err)
		}

		if err := r.Record(resolvedBatch(t, "a.jpg")); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "batch_junk.msgpack"), []byte("not msgpack"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0644); err != nil {
			t.Fatal(err)
		}

		summaries, err := r.List(0)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(summaries) != 1 {
			t.Errorf("Expected corrupt and foreign entries skipped, got %d summaries", len(summaries))
		}
	})
}
