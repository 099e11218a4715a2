package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dharsanguruparan/MemoryDrop/internal/capture"
	"github.com/dharsanguruparan/MemoryDrop/internal/model"
	"github.com/dharsanguruparan/MemoryDrop/internal/queue"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// The server decides outcomes by docname so request ordering is irrelevant.
func outcomeByName(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		switch r.FormValue("docname") {
		case "bad.txt":
			w.Write([]byte(`{"success":false,"error":"bad format"}`))
		default:
			w.Write([]byte(`{"success":true,"docnumber":42}`))
		}
	}
}

func TestUploadPendingIsolation(t *testing.T) {
	srv := httptest.NewServer(outcomeByName(t))
	defer srv.Close()

	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.txt", "first")
	good := writeFile(t, dir, "good.txt", "second")

	q := queue.New(capture.None{})
	if errs := q.Add([]string{bad, good}); len(errs) != 0 {
		t.Fatalf("add: %v", errs)
	}
	executor := NewExecutor(NewClient(srv.URL, 5*time.Second, nil), q, nil)
	ids, err := executor.UploadPending(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 1 || ids[0] != 42 {
		t.Fatalf("successful ids = %v, want [42]", ids)
	}

	for _, item := range q.Items() {
		if !item.Terminal() {
			t.Fatalf("batch returned before %s settled", item.SourceFile.Name)
		}
		switch item.SourceFile.Name {
		case "bad.txt":
			if item.Status != model.StatusError || item.ErrorMessage != "bad format" {
				t.Fatalf("bad.txt: %+v", item)
			}
			if item.AssignedDocID != nil {
				t.Fatal("errored item must not carry a doc id")
			}
		case "good.txt":
			if item.Status != model.StatusSuccess || item.AssignedDocID == nil || *item.AssignedDocID != 42 {
				t.Fatalf("good.txt: %+v", item)
			}
			if item.Progress != 100 {
				t.Fatalf("successful item progress = %d", item.Progress)
			}
			if item.ErrorMessage != "" {
				t.Fatal("successful item must not carry an error message")
			}
		}
	}
}

func TestUploadPendingEmptyBatch(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	q := queue.New(capture.None{})
	executor := NewExecutor(NewClient(srv.URL, time.Second, nil), q, nil)
	_, err := executor.UploadPending(context.Background(), nil)
	if !errors.Is(err, ErrNoPending) {
		t.Fatalf("expected ErrNoPending, got %v", err)
	}
	if called {
		t.Fatal("empty batches must be rejected before any network call")
	}
}

func TestUploadPendingSnapshotExcludesLaterFiles(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(started) })
		<-release
		w.Write([]byte(`{"success":true,"docnumber":1}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	first := writeFile(t, dir, "first.txt", "x")
	second := writeFile(t, dir, "second.txt", "y")

	q := queue.New(capture.None{})
	q.Add([]string{first})
	executor := NewExecutor(NewClient(srv.URL, 5*time.Second, nil), q, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		executor.UploadPending(context.Background(), nil)
	}()

	// Item added mid-batch stays pending for the next batch.
	<-started
	q.Add([]string{second})
	close(release)
	<-done

	for _, item := range q.Items() {
		switch item.SourceFile.Name {
		case "first.txt":
			if item.Status != model.StatusSuccess {
				t.Fatalf("first.txt should have uploaded: %+v", item)
			}
		case "second.txt":
			if item.Status != model.StatusPending {
				t.Fatalf("second.txt joined the wrong batch: %+v", item)
			}
		}
	}
}

func TestUploadPendingNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "x")
	q := queue.New(capture.None{})
	q.Add([]string{path})

	executor := NewExecutor(NewClient(srv.URL, time.Second, nil), q, nil)
	ids, err := executor.UploadPending(context.Background(), nil)
	if err != nil {
		t.Fatalf("batch-level error for per-item failure: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("ids = %v", ids)
	}
	item := q.Items()[0]
	if item.Status != model.StatusError || item.ErrorMessage == "" {
		t.Fatalf("expected errored item with message: %+v", item)
	}
}
