package transport

import (
	"context"
	"errors"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/MemoryDrop/internal/model"
	"github.com/dharsanguruparan/MemoryDrop/internal/queue"
)

// ErrNoPending is returned when a batch is invoked with nothing to send.
// It is rejected before any network call.
var ErrNoPending = errors.New("no pending uploads")

// Executor drains every pending item in the queue concurrently and drives
// each one to a terminal state. Uploads are all issued back-to-back and the
// call returns only after the last item has settled; one item's failure
// never delays or aborts the others.
type Executor struct {
	client *Client
	queue  *queue.Queue
	log    *zap.Logger
}

// NewExecutor constructs an Executor over a queue.
func NewExecutor(client *Client, q *queue.Queue, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{client: client, queue: q, log: log}
}

// UploadPending snapshots the pending items, uploads them all concurrently
// and returns the server-assigned document numbers of the successful ones in
// selection order. Items added while the batch is in flight belong to the
// next batch.
func (e *Executor) UploadPending(ctx context.Context, eventID *int) ([]int, error) {
	batch := e.queue.PendingSnapshot()
	if len(batch) == 0 {
		return nil, ErrNoPending
	}
	for _, item := range batch {
		e.queue.Update(item.ID, func(it *model.UploadItem) {
			it.Status = model.StatusUploading
			it.Progress = 0
			it.ErrorMessage = ""
		})
	}

	assigned := make([]*int, len(batch))
	var wg sync.WaitGroup
	for i, item := range batch {
		wg.Add(1)
		go func(i int, item model.UploadItem) {
			defer wg.Done()
			assigned[i] = e.uploadOne(ctx, item, eventID)
		}(i, item)
	}
	wg.Wait()

	var ids []int
	for _, doc := range assigned {
		if doc != nil {
			ids = append(ids, *doc)
		}
	}
	return ids, nil
}

func (e *Executor) uploadOne(ctx context.Context, item model.UploadItem, eventID *int) *int {
	data, err := os.ReadFile(item.SourceFile.Path)
	if err != nil {
		e.fail(item.ID, "could not read file")
		e.log.Warn("read source file failed", zap.String("item", item.ID), zap.Error(err))
		return nil
	}
	req := UploadRequest{
		FileName:  item.SourceFile.Name,
		DocName:   item.EffectiveName(),
		Abstract:  "",
		EventID:   eventID,
		DateTaken: item.FormattedCaptureDate(),
		Data:      data,
	}
	docnumber, err := e.client.UploadDocument(ctx, req, func(percent int) {
		e.queue.Update(item.ID, func(it *model.UploadItem) {
			if it.Status == model.StatusUploading && percent > it.Progress {
				it.Progress = percent
			}
		})
	})
	if err != nil {
		e.fail(item.ID, err.Error())
		e.log.Warn("upload failed",
			zap.String("item", item.ID),
			zap.String("file", item.SourceFile.Name),
			zap.String("kind", string(ErrorKindOf(err))),
			zap.Error(err))
		return nil
	}
	e.queue.Update(item.ID, func(it *model.UploadItem) {
		it.Status = model.StatusSuccess
		it.Progress = 100
		it.AssignedDocID = &docnumber
		it.ErrorMessage = ""
	})
	e.log.Info("upload complete",
		zap.String("item", item.ID),
		zap.String("file", item.SourceFile.Name),
		zap.Int("docnumber", docnumber))
	return &docnumber
}

func (e *Executor) fail(id, message string) {
	e.queue.Update(id, func(it *model.UploadItem) {
		it.Status = model.StatusError
		it.ErrorMessage = message
		it.AssignedDocID = nil
	})
}
