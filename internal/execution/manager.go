// Package execution runs work items through the pending → running →
// terminal state machine over the append-only execution log. The actual
// unit of work is pluggable; the default runner is a no-op so the package
// tracks orchestration state without owning a backend.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jivehq/jive/internal/logger"
	"github.com/jivehq/jive/internal/model"
	"github.com/jivehq/jive/internal/storage"
	"github.com/jivehq/jive/internal/workitem"
)

var (
	// ErrNotReady means the item's dependencies are not all completed.
	ErrNotReady = errors.New("work item not ready")
	// ErrInvalidState rejects a transition the state machine forbids.
	ErrInvalidState = errors.New("invalid execution state")
	// ErrQueueFull means the bounded worker queue rejected a job.
	ErrQueueFull = errors.New("execution queue full")
	// ErrClosed means the manager was shut down.
	ErrClosed = errors.New("execution manager closed")
)

// Runner performs the actual unit of work for one item. Run should honour
// ctx cancellation.
type Runner interface {
	Run(ctx context.Context, item *model.WorkItem) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, item *model.WorkItem) error

func (f RunnerFunc) Run(ctx context.Context, item *model.WorkItem) error { return f(ctx, item) }

// NoopRunner completes immediately. Scheduling real agents is a backend
// concern outside this process.
type NoopRunner struct{}

func (NoopRunner) Run(ctx context.Context, item *model.WorkItem) error { return nil }

// ExecuteRequest starts one execution.
type ExecuteRequest struct {
	Ref     string `json:"work_item_id" validate:"required"`
	AgentID string `json:"agent_id"`
	Details string `json:"details"`
}

// Readiness is the result of a validation dry run.
type Readiness struct {
	Ready       bool     `json:"ready"`
	WorkItemID  string   `json:"work_item_id"`
	BlockedBy   []string `json:"blocked_by,omitempty"`
	MissingDeps []string `json:"missing_dependencies,omitempty"`
}

type job struct {
	store    *storage.Store
	recordID string
	itemID   string
}

// Manager owns the worker pool and the cancellation registry.
type Manager struct {
	engine *workitem.Engine
	runner Runner
	queue  chan job
	quit   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
}

// NewManager starts workers goroutines servicing a queue of queueSize.
func NewManager(engine *workitem.Engine, runner Runner, workers, queueSize int) *Manager {
	if runner == nil {
		runner = NoopRunner{}
	}
	if workers < 1 {
		workers = 2
	}
	if queueSize < 1 {
		queueSize = 64
	}
	m := &Manager{
		engine:  engine,
		runner:  runner,
		queue:   make(chan job, queueSize),
		quit:    make(chan struct{}),
		cancels: map[string]context.CancelFunc{},
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m
}

// Execute checks readiness, registers a pending record, and enqueues the
// job. The returned record is in state pending; poll status for progress.
func (m *Manager) Execute(ctx context.Context, store *storage.Store, req ExecuteRequest) (*model.ExecutionRecord, error) {
	item, err := m.engine.Resolve(store, req.Ref)
	if err != nil {
		return nil, err
	}

	readiness, err := m.readinessOf(store, item)
	if err != nil {
		return nil, err
	}
	if !readiness.Ready {
		return nil, fmt.Errorf("%w: blocked by %v", ErrNotReady, readiness.BlockedBy)
	}

	rec := &model.ExecutionRecord{
		ID:         uuid.New().String(),
		WorkItemID: item.ID,
		Action:     "execute",
		Status:     model.ExecutionPending,
		AgentID:    req.AgentID,
		Details:    req.Details,
		Timestamp:  time.Now().UTC(),
	}
	if err := store.AppendExecution(rec); err != nil {
		return nil, fmt.Errorf("failed to register execution: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.mu.Unlock()

	select {
	case m.queue <- job{store: store, recordID: rec.ID, itemID: item.ID}:
		return rec, nil
	default:
		rec.Status = model.ExecutionCancelled
		rec.ErrorMessage = ErrQueueFull.Error()
		_ = store.ReplaceExecution(rec)
		return nil, ErrQueueFull
	}
}

// Status returns the record by execution id.
func (m *Manager) Status(ctx context.Context, store *storage.Store, executionID string) (*model.ExecutionRecord, error) {
	return store.GetExecution(executionID)
}

// LatestForItem returns the most recent execution of a work item.
func (m *Manager) LatestForItem(ctx context.Context, store *storage.Store, ref string) (*model.ExecutionRecord, error) {
	item, err := m.engine.Resolve(store, ref)
	if err != nil {
		return nil, err
	}
	recs, err := store.ListExecutions(storage.ListOptions{
		Where: storage.And(storage.Eq("work_item_id", item.ID), storage.Eq("action", "execute")),
		Limit: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, storage.ErrExecutionNotFound
	}
	return recs[0], nil
}

// Cancel stops an execution. Cancelling an already-cancelled record is a
// no-op; other terminal states reject the transition.
func (m *Manager) Cancel(ctx context.Context, store *storage.Store, executionID string) (*model.ExecutionRecord, error) {
	rec, err := store.GetExecution(executionID)
	if err != nil {
		return nil, err
	}
	if rec.Status == model.ExecutionCancelled {
		return rec, nil
	}
	if !rec.Status.CanTransition(model.ExecutionCancelled) {
		return nil, fmt.Errorf("%w: cannot cancel %s execution", ErrInvalidState, rec.Status)
	}

	m.mu.Lock()
	cancel := m.cancels[rec.ID]
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	rec.Status = model.ExecutionCancelled
	rec.Timestamp = time.Now().UTC()
	if err := store.ReplaceExecution(rec); err != nil {
		return nil, fmt.Errorf("failed to record cancellation: %w", err)
	}
	return rec, nil
}

// Validate dry-runs readiness without registering anything.
func (m *Manager) Validate(ctx context.Context, store *storage.Store, ref string) (*Readiness, error) {
	item, err := m.engine.Resolve(store, ref)
	if err != nil {
		return nil, err
	}
	return m.readinessOf(store, item)
}

// readinessOf reports whether every dependency is completed.
func (m *Manager) readinessOf(store *storage.Store, item *model.WorkItem) (*Readiness, error) {
	r := &Readiness{Ready: true, WorkItemID: item.ID}
	for _, dep := range item.Dependencies {
		d, err := store.GetWorkItem(dep)
		if errors.Is(err, storage.ErrWorkItemNotFound) {
			r.Ready = false
			r.MissingDeps = append(r.MissingDeps, dep)
			continue
		}
		if err != nil {
			return nil, err
		}
		if d.Status != model.StatusCompleted {
			r.Ready = false
			r.BlockedBy = append(r.BlockedBy, dep)
		}
	}
	return r, nil
}

// Close stops accepting work, interrupts running jobs, and waits for the
// workers. Queued jobs that never started stay pending in the log.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for _, cancel := range m.cancels {
		cancel()
	}
	m.mu.Unlock()
	close(m.quit)
	m.wg.Wait()
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.quit:
			return
		case j := <-m.queue:
			m.runOne(j)
		}
	}
}

// runOne drives a single record through the state machine.
func (m *Manager) runOne(j job) {
	rec, err := j.store.GetExecution(j.recordID)
	if err != nil {
		logger.Warn("execution %s vanished before start: %v", j.recordID, err)
		return
	}
	// Cancelled while still queued.
	if rec.Status.Terminal() {
		return
	}
	if !rec.Status.CanTransition(model.ExecutionRunning) {
		return
	}

	// Register cancellation before any writes so Close and Cancel can always
	// reach a job that has started.
	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return
	}
	m.cancels[rec.ID] = cancel
	m.mu.Unlock()
	defer func() {
		cancel()
		m.mu.Lock()
		delete(m.cancels, rec.ID)
		m.mu.Unlock()
	}()

	started := time.Now().UTC()
	rec.Status = model.ExecutionRunning
	rec.Timestamp = started
	if err := j.store.ReplaceExecution(rec); err != nil {
		logger.Error("execution %s failed to start: %v", rec.ID, err)
		return
	}

	item, err := m.engine.Get(ctx, j.store, j.itemID)
	if err != nil {
		m.finish(j.store, rec, started, err)
		return
	}
	if item.Status == model.StatusNotStarted {
		status := model.StatusInProgress
		if _, err := m.engine.Update(ctx, j.store, workitem.UpdateRequest{Ref: item.ID, Status: &status}); err != nil {
			logger.Warn("could not mark %s in progress: %v", item.ID, err)
		}
	}

	m.finish(j.store, rec, started, m.runner.Run(ctx, item))
}

// finish writes the terminal state for a running record.
func (m *Manager) finish(store *storage.Store, rec *model.ExecutionRecord, started time.Time, runErr error) {
	current, err := store.GetExecution(rec.ID)
	if err == nil && current.Status.Terminal() {
		// Cancel won the race.
		return
	}

	switch {
	case runErr == nil:
		rec.Status = model.ExecutionSucceeded
	case errors.Is(runErr, context.Canceled):
		rec.Status = model.ExecutionCancelled
	default:
		rec.Status = model.ExecutionFailed
		rec.ErrorMessage = runErr.Error()
	}
	rec.DurationSeconds = time.Since(started).Seconds()
	rec.Timestamp = time.Now().UTC()
	if err := store.ReplaceExecution(rec); err != nil {
		logger.Error("execution %s failed to finish: %v", rec.ID, err)
	}
}
