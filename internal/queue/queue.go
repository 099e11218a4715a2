// Package queue maintains the ordered set of files selected for upload.
// Every mutation is keyed by item id so callbacks from concurrently
// in-flight uploads can never clobber each other through a stale snapshot.
package queue

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dharsanguruparan/MemoryDrop/internal/capture"
	"github.com/dharsanguruparan/MemoryDrop/internal/model"
)

// Queue owns the UploadItems between selection and their terminal states.
type Queue struct {
	mu        sync.RWMutex
	items     []*model.UploadItem
	index     map[string]*model.UploadItem
	extractor capture.Extractor
}

// New constructs an empty queue. A nil extractor means no capture dates are
// ever resolved.
func New(extractor capture.Extractor) *Queue {
	if extractor == nil {
		extractor = capture.None{}
	}
	return &Queue{
		index:     make(map[string]*model.UploadItem),
		extractor: extractor,
	}
}

// Add selects the given files. Each file is prepared independently: date
// extraction for one file never blocks another from appearing, and a file
// that cannot be read is reported without affecting its siblings. Add
// returns once every file has either joined the queue or failed.
func (q *Queue) Add(paths []string) []error {
	var (
		wg    sync.WaitGroup
		errMu sync.Mutex
		errs  []error
	)
	for _, path := range paths {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			if err := q.addOne(path); err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
		}(path)
	}
	wg.Wait()
	return errs
}

func (q *Queue) addOne(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s is empty", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	src := model.SourceFile{
		Path:        path,
		Name:        filepath.Base(path),
		Size:        info.Size(),
		ContentType: detectContentType(path, data),
	}
	var captureDate *time.Time
	if t, ok := q.extractor.Extract(src.Name, data); ok {
		captureDate = &t
	}
	item := model.NewUploadItem(src, captureDate)

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	q.index[item.ID] = item
	return nil
}

// Remove withdraws an item. It is a silent no-op when the id is unknown or
// the item is already uploading or done.
func (q *Queue) Remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.index[id]
	if !ok || !item.Removable() {
		return
	}
	delete(q.index, id)
	for i, it := range q.items {
		if it.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
}

// UpdateDisplayName edits the name sent to the server. No-op outside
// pending/error.
func (q *Queue) UpdateDisplayName(id, name string) {
	q.Update(id, func(item *model.UploadItem) {
		if item.Editable() {
			item.DisplayName = name
		}
	})
}

// UpdateCaptureDate edits (or clears) the capture date. No-op outside
// pending/error.
func (q *Queue) UpdateCaptureDate(id string, date *time.Time) {
	q.Update(id, func(item *model.UploadItem) {
		if item.Editable() {
			item.CaptureDate = date
		}
	})
}

// Retry returns an errored item to pending so the next batch picks it up
// again. Each attempt is independent; no dedup key is carried over.
func (q *Queue) Retry(id string) {
	q.Update(id, func(item *model.UploadItem) {
		if item.Status != model.StatusError {
			return
		}
		item.Status = model.StatusPending
		item.ErrorMessage = ""
		item.Progress = 0
	})
}

// Update applies fn to the single item with the given id under the write
// lock. This is the only mutation path the transport layer uses, so
// interleaved progress callbacks from different items stay isolated.
func (q *Queue) Update(id string, fn func(*model.UploadItem)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.index[id]
	if !ok {
		return false
	}
	fn(item)
	return true
}

// Get returns a copy of one item.
func (q *Queue) Get(id string) (model.UploadItem, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	item, ok := q.index[id]
	if !ok {
		return model.UploadItem{}, false
	}
	return *item, true
}

// Items returns copies of all items in selection order.
func (q *Queue) Items() []model.UploadItem {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]model.UploadItem, len(q.items))
	for i, item := range q.items {
		out[i] = *item
	}
	return out
}

// PendingSnapshot returns copies of the items a new upload batch should
// carry. Items added after the snapshot belong to the next batch.
func (q *Queue) PendingSnapshot() []model.UploadItem {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []model.UploadItem
	for _, item := range q.items {
		if item.Status == model.StatusPending {
			out = append(out, *item)
		}
	}
	return out
}

// PendingCount is recomputed on demand rather than cached.
func (q *Queue) PendingCount() int { return q.countByStatus(model.StatusPending) }

// SuccessCount is recomputed on demand rather than cached.
func (q *Queue) SuccessCount() int { return q.countByStatus(model.StatusSuccess) }

func (q *Queue) countByStatus(status model.UploadStatus) int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	n := 0
	for _, item := range q.items {
		if item.Status == status {
			n++
		}
	}
	return n
}

func detectContentType(path string, data []byte) string {
	if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
		return byExt
	}
	if len(data) > 512 {
		data = data[:512]
	}
	return http.DetectContentType(data)
}
