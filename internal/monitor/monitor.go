// Package monitor tracks a batch of server-side processing jobs from
// registration to convergence, surviving client restarts via the durable
// state store.
package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/MemoryDrop/internal/state"
)

// StatusChecker answers which of the given document numbers are still being
// processed. transport.Client satisfies this.
type StatusChecker interface {
	ProcessingStatus(ctx context.Context, ids []int) ([]int, error)
}

// DelayFunc decides how long to wait before poll number attempt (starting
// at 0). Isolating the schedule here keeps convergence logic untouched if
// fixed-interval polling ever becomes backoff.
type DelayFunc func(attempt int) time.Duration

// FixedDelay polls on a constant interval.
func FixedDelay(d time.Duration) DelayFunc {
	return func(int) time.Duration { return d }
}

// DefaultInterval matches the web client's seven second status cadence.
const DefaultInterval = 7 * time.Second

// Monitor owns the in-memory processing set and its persisted mirror. The
// polling loop is the only long-lived resource in the client and is always
// stopped on convergence or teardown.
type Monitor struct {
	checker StatusChecker
	store   state.Store
	log     *zap.Logger
	delay   DelayFunc

	mu      sync.Mutex
	set     map[int]struct{}
	running bool
	parent  context.Context
	cancel  context.CancelFunc
	subs    []chan struct{}
}

// Option tweaks a Monitor.
type Option func(*Monitor)

// WithDelay overrides the polling schedule.
func WithDelay(fn DelayFunc) Option {
	return func(m *Monitor) { m.delay = fn }
}

// New constructs a Monitor. It does not touch the store until Register or
// Resume is called.
func New(checker StatusChecker, store state.Store, log *zap.Logger, opts ...Option) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Monitor{
		checker: checker,
		store:   store,
		log:     log,
		delay:   FixedDelay(DefaultInterval),
		set:     make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register unions ids into the processing set, persists the result and, if
// the monitor was idle, starts the polling loop under ctx.
func (m *Monitor) Register(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := false
	for _, id := range ids {
		if _, ok := m.set[id]; !ok {
			m.set[id] = struct{}{}
			changed = true
		}
	}
	var err error
	if changed {
		err = m.store.Save(m.trackingLocked())
	}
	m.startLocked(ctx)
	return err
}

// Unregister removes ids from the set, the compensating half of an
// optimistic registration. No convergence notification fires; if the set
// empties the loop winds down quietly on its next tick.
func (m *Monitor) Unregister(ids []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := false
	for _, id := range ids {
		if _, ok := m.set[id]; ok {
			delete(m.set, id)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return m.store.Save(m.trackingLocked())
}

// Resume rehydrates the set from the store and starts polling when a
// previous run left work behind. Safe to call when nothing is persisted.
func (m *Monitor) Resume(ctx context.Context) error {
	ids, err := m.store.Load()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.set[id] = struct{}{}
	}
	m.log.Info("resuming processing watch", zap.Ints("docnumbers", m.trackingLocked()))
	m.startLocked(ctx)
	return nil
}

// Stop cancels the polling loop without clearing persisted state, so the
// batch can be resumed later.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// Subscribe returns a channel that receives one value each time a tracked
// batch converges.
func (m *Monitor) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Tracking returns the document numbers currently being watched, sorted.
func (m *Monitor) Tracking() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trackingLocked()
}

// Idle reports whether the polling loop is currently stopped.
func (m *Monitor) Idle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.running
}

func (m *Monitor) trackingLocked() []int {
	ids := make([]int, 0, len(m.set))
	for id := range m.set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (m *Monitor) startLocked(ctx context.Context) {
	if m.running || len(m.set) == 0 {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.parent = ctx
	m.cancel = cancel
	go m.run(loopCtx, cancel)
}

func (m *Monitor) run(ctx context.Context, cancel context.CancelFunc) {
	defer func() {
		interrupted := ctx.Err() != nil
		cancel()
		m.mu.Lock()
		m.running = false
		if !interrupted && len(m.set) > 0 {
			// A registration raced with our exit; pick the new batch up.
			m.startLocked(m.parent)
		}
		m.mu.Unlock()
	}()
	for attempt := 0; ; attempt++ {
		timer := time.NewTimer(m.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		polled := m.Tracking()
		if len(polled) == 0 {
			// Everything was unregistered while we slept; nothing to
			// converge on.
			return
		}
		still, err := m.checker.ProcessingStatus(ctx, polled)
		if err != nil {
			// Transient failures are expected; keep polling.
			m.log.Warn("processing status check failed", zap.Error(err))
			continue
		}
		stop, notify := m.applyPoll(polled, still)
		if notify {
			m.log.Info("processing batch complete")
			m.notifyConverged()
		}
		if stop {
			return
		}
	}
}

// applyPoll folds one status response into the set. Only the ids that were
// actually polled are reconciled, so a registration that raced with the
// request is not lost. Persisted state is rewritten only when the set
// changed, and the completion notification fires exactly once, on the poll
// that emptied the set.
func (m *Monitor) applyPoll(polled, still []int) (stop, notify bool) {
	stillSet := make(map[int]struct{}, len(still))
	for _, id := range still {
		stillSet[id] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := false
	for _, id := range polled {
		if _, ok := stillSet[id]; !ok {
			if _, tracked := m.set[id]; tracked {
				delete(m.set, id)
				changed = true
			}
		}
	}
	if !changed {
		// An unchanged response leaves memory and persisted bytes alone.
		return len(m.set) == 0, false
	}
	if len(m.set) == 0 {
		if err := m.store.Clear(); err != nil {
			m.log.Warn("clear persisted state failed", zap.Error(err))
		}
		return true, true
	}
	if err := m.store.Save(m.trackingLocked()); err != nil {
		m.log.Warn("persist processing set failed", zap.Error(err))
	}
	return false, false
}

func (m *Monitor) notifyConverged() {
	m.mu.Lock()
	subs := append([]chan struct{}(nil), m.subs...)
	m.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
