// Package controller wires the upload queue, transport executor and
// processing monitor into the ingestion flow the UI (or CLI) drives: add
// files, upload, analyze, refresh when the backend finishes.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/MemoryDrop/internal/model"
	"github.com/dharsanguruparan/MemoryDrop/internal/monitor"
	"github.com/dharsanguruparan/MemoryDrop/internal/queue"
	"github.com/dharsanguruparan/MemoryDrop/internal/transport"
)

// ErrNothingToAnalyze is returned when Analyze is invoked without any
// successfully uploaded documents.
var ErrNothingToAnalyze = errors.New("no successful uploads to analyze")

// Controller orchestrates one ingestion session.
type Controller struct {
	queue    *queue.Queue
	executor *transport.Executor
	client   *transport.Client
	monitor  *monitor.Monitor
	log      *zap.Logger

	mu      sync.Mutex
	refresh func()
	done    chan struct{}
}

// New builds a Controller and bridges monitor convergence to the refresh
// callback set via OnRefresh.
func New(q *queue.Queue, executor *transport.Executor, client *transport.Client, mon *monitor.Monitor, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Controller{
		queue:    q,
		executor: executor,
		client:   client,
		monitor:  mon,
		log:      log,
		done:     make(chan struct{}),
	}
	converged := mon.Subscribe()
	go func() {
		for {
			select {
			case <-c.done:
				return
			case <-converged:
				c.mu.Lock()
				fn := c.refresh
				c.mu.Unlock()
				if fn != nil {
					fn()
				}
			}
		}
	}()
	return c
}

// OnRefresh registers the callback fired once per converged batch, the
// signal for collaborators to reload their visible data.
func (c *Controller) OnRefresh(fn func()) {
	c.mu.Lock()
	c.refresh = fn
	c.mu.Unlock()
}

// Queue exposes the underlying queue for metadata edits and listing.
func (c *Controller) Queue() *queue.Queue { return c.queue }

// AddFiles selects local files into the queue. Per-file failures are
// collected; the remaining files still join.
func (c *Controller) AddFiles(paths []string) []error {
	return c.queue.Add(paths)
}

// Upload drains all pending items and returns the document numbers of the
// successful uploads.
func (c *Controller) Upload(ctx context.Context, eventID *int) ([]int, error) {
	return c.executor.UploadPending(ctx, eventID)
}

// Analyze registers the uploaded documents with the monitor, then asks the
// backend to start processing. Registration is optimistic: if initiation
// fails, the compensating rollback removes exactly the ids just registered.
func (c *Controller) Analyze(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return ErrNothingToAnalyze
	}
	cmd := registration{
		apply: func() error {
			return c.monitor.Register(ctx, ids)
		},
		compensate: func() error {
			return c.monitor.Unregister(ids)
		},
	}
	if err := cmd.apply(); err != nil {
		return fmt.Errorf("register processing batch: %w", err)
	}
	if err := c.client.StartProcessing(ctx, ids); err != nil {
		c.log.Warn("processing initiation failed, rolling back", zap.Ints("docnumbers", ids), zap.Error(err))
		if rbErr := cmd.compensate(); rbErr != nil {
			c.log.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	c.log.Info("processing started", zap.Ints("docnumbers", ids))
	return nil
}

// AnalyzeUploaded is Analyze over every item currently in success state.
func (c *Controller) AnalyzeUploaded(ctx context.Context) error {
	var ids []int
	for _, item := range c.queue.Items() {
		if item.Status == model.StatusSuccess && item.AssignedDocID != nil {
			ids = append(ids, *item.AssignedDocID)
		}
	}
	return c.Analyze(ctx, ids)
}

// Resume rehydrates the monitor from persisted state; a batch left behind
// by a previous run is polled again without a new registration.
func (c *Controller) Resume(ctx context.Context) error {
	return c.monitor.Resume(ctx)
}

// Tracking returns the document numbers currently being watched.
func (c *Controller) Tracking() []int {
	return c.monitor.Tracking()
}

// Wait blocks until the tracked batch converges or ctx is cancelled. It
// returns immediately when nothing is tracked.
func (c *Controller) Wait(ctx context.Context) error {
	converged := c.monitor.Subscribe()
	if len(c.monitor.Tracking()) == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-converged:
		return nil
	}
}

// Close tears the session down, stopping the polling loop so no timer is
// left behind. Persisted state is kept for the next run.
func (c *Controller) Close() {
	c.monitor.Stop()
	close(c.done)
}

// registration is an explicit command: a forward mutation plus the
// compensating rollback applied when downstream initiation fails.
type registration struct {
	apply      func() error
	compensate func() error
}
