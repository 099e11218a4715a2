package queue

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dharsanguruparan/MemoryDrop/internal/capture"
	"github.com/dharsanguruparan/MemoryDrop/internal/model"
)

type fixedDate struct{ t time.Time }

func (f fixedDate) Extract(string, []byte) (time.Time, bool) { return f.t, true }

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestAddResolvesCaptureDate(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "photo.jpg", "not really a jpeg")
	taken := time.Date(2024, 1, 31, 15, 45, 0, 0, time.Local)

	q := New(fixedDate{taken})
	if errs := q.Add([]string{path}); len(errs) != 0 {
		t.Fatalf("unexpected add errors: %v", errs)
	}
	items := q.Items()
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	item := items[0]
	if item.Status != model.StatusPending {
		t.Fatalf("expected pending, got %s", item.Status)
	}
	if item.DisplayName != "photo.jpg" {
		t.Fatalf("display name should start as the file name, got %q", item.DisplayName)
	}
	if item.CaptureDate == nil || !item.CaptureDate.Equal(taken) {
		t.Fatalf("capture date not resolved: %v", item.CaptureDate)
	}
}

func TestAddIsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "a.txt", "content")
	missing := filepath.Join(dir, "does-not-exist.txt")
	empty := writeFile(t, dir, "empty.txt", "")

	q := New(capture.None{})
	errs := q.Add([]string{good, missing, empty})
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(errs), errs)
	}
	if got := q.PendingCount(); got != 1 {
		t.Fatalf("the readable file should still be queued, pending = %d", got)
	}
}

func TestRemoveGuard(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "content")
	q := New(capture.None{})
	q.Add([]string{path})
	id := q.Items()[0].ID

	q.Update(id, func(it *model.UploadItem) { it.Status = model.StatusUploading })
	q.Remove(id)
	if _, ok := q.Get(id); !ok {
		t.Fatal("removing an uploading item must be a no-op")
	}

	q.Update(id, func(it *model.UploadItem) { it.Status = model.StatusError })
	q.Remove(id)
	if _, ok := q.Get(id); ok {
		t.Fatal("errored items must be removable")
	}
	if len(q.Items()) != 0 {
		t.Fatal("item should be gone from the ordered list too")
	}
}

func TestEditGuards(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "content")
	q := New(capture.None{})
	q.Add([]string{path})
	id := q.Items()[0].ID

	q.UpdateDisplayName(id, "renamed")
	if item, _ := q.Get(id); item.DisplayName != "renamed" {
		t.Fatalf("pending item should be editable, got %q", item.DisplayName)
	}

	q.Update(id, func(it *model.UploadItem) { it.Status = model.StatusUploading })
	q.UpdateDisplayName(id, "mid-flight rename")
	taken := time.Now()
	q.UpdateCaptureDate(id, &taken)
	item, _ := q.Get(id)
	if item.DisplayName != "renamed" || item.CaptureDate != nil {
		t.Fatal("uploading items must reject metadata edits")
	}

	q.Update(id, func(it *model.UploadItem) { it.Status = model.StatusSuccess })
	q.UpdateDisplayName(id, "after the fact")
	if item, _ := q.Get(id); item.DisplayName != "renamed" {
		t.Fatal("successful items must reject metadata edits")
	}
}

func TestRetryResetsErroredItem(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "content")
	q := New(capture.None{})
	q.Add([]string{path})
	id := q.Items()[0].ID

	q.Update(id, func(it *model.UploadItem) {
		it.Status = model.StatusError
		it.ErrorMessage = "boom"
		it.Progress = 40
	})
	q.Retry(id)
	item, _ := q.Get(id)
	if item.Status != model.StatusPending || item.ErrorMessage != "" || item.Progress != 0 {
		t.Fatalf("retry should reset the item: %+v", item)
	}

	q.Update(id, func(it *model.UploadItem) { it.Status = model.StatusSuccess })
	q.Retry(id)
	if item, _ := q.Get(id); item.Status != model.StatusSuccess {
		t.Fatal("retry must not touch successful items")
	}
}

func TestCountsRecomputed(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "x")
	b := writeFile(t, dir, "b.txt", "y")
	q := New(capture.None{})
	q.Add([]string{a, b})

	if q.PendingCount() != 2 || q.SuccessCount() != 0 {
		t.Fatalf("counts wrong: pending=%d success=%d", q.PendingCount(), q.SuccessCount())
	}
	id := q.Items()[0].ID
	doc := 7
	q.Update(id, func(it *model.UploadItem) {
		it.Status = model.StatusSuccess
		it.AssignedDocID = &doc
	})
	if q.PendingCount() != 1 || q.SuccessCount() != 1 {
		t.Fatalf("counts wrong after update: pending=%d success=%d", q.PendingCount(), q.SuccessCount())
	}
}

func TestConcurrentKeyedUpdates(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "x")
	b := writeFile(t, dir, "b.txt", "y")
	q := New(capture.None{})
	q.Add([]string{a, b})
	items := q.Items()

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for pct := 1; pct <= 100; pct++ {
				q.Update(id, func(it *model.UploadItem) {
					if pct > it.Progress {
						it.Progress = pct
					}
				})
			}
		}(item.ID)
	}
	wg.Wait()
	for _, item := range q.Items() {
		if item.Progress != 100 {
			t.Fatalf("interleaved updates lost writes: %s at %d", item.ID, item.Progress)
		}
	}
}
