package tasks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/drivehop/drivehop/internal/drives"
	"github.com/drivehop/drivehop/internal/models"
	"github.com/drivehop/drivehop/internal/shared"
)

// TaskStore is the durable task queue the orchestrator drives.
type TaskStore interface {
	Create(task *models.Task) error
	Get(id string) (*models.Task, error)
	Update(task *models.Task) error
	Delete(id string) error
	List() ([]*models.Task, error)
	NextPending() (*models.Task, error)
	CurrentRunning() (*models.Task, error)
	SetCurrent(id string) error
	MarkInterrupted() (int, error)
	ClearCompleted() (int, error)
}

// SessionRefresher re-reads a provider's cookies into a fresh session.
type SessionRefresher interface {
	Refresh(ctx context.Context, provider models.Provider) (*models.Session, error)
}

// Folders holds the per-provider destination folders for saved content.
type Folders struct {
	Source      string
	Destination string
}

// OrchestratorOpts configures a new Orchestrator.
type OrchestratorOpts struct {
	Store    TaskStore
	Source   drives.Drive
	Dest     drives.Drive
	Sessions SessionRefresher
	Transfer shared.TransferConfig
	Folders  Folders
	Logger   *log.Logger
	Events   *Broadcaster
}

// Orchestrator advances one task at a time through the transfer pipeline.
//
// It is the single writer of task status and progress; the run loop is
// strictly sequential so no cross-task locking is needed.
type Orchestrator struct {
	store    TaskStore
	source   drives.Drive
	dest     drives.Drive
	sessions SessionRefresher
	transfer shared.TransferConfig
	folders  Folders
	logger   *log.Logger
	events   *Broadcaster

	wake chan struct{}

	mu        sync.Mutex
	cancelled map[string]bool // cooperative flags for running tasks
}

// NewOrchestrator creates an orchestrator over the given stores and drives.
func NewOrchestrator(opts OrchestratorOpts) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Events == nil {
		opts.Events = NewBroadcaster()
	}

	return &Orchestrator{
		store:     opts.Store,
		source:    opts.Source,
		dest:      opts.Dest,
		sessions:  opts.Sessions,
		transfer:  opts.Transfer,
		folders:   opts.Folders,
		logger:    shared.WithLogger(opts.Logger, "component", "orchestrator"),
		events:    opts.Events,
		wake:      make(chan struct{}, 1),
		cancelled: make(map[string]bool),
	}
}

// Events exposes the orchestrator's broadcaster for listeners.
func (o *Orchestrator) Events() *Broadcaster {
	return o.events
}

// Enqueue appends a new pending task for the given share URL. It never
// starts a second pipeline: if a task is already running the new one waits
// its turn in FIFO order.
func (o *Orchestrator) Enqueue(ctx context.Context, sourceURL, accessCode string) (*models.Task, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" || (!strings.HasPrefix(sourceURL, "http://") && !strings.HasPrefix(sourceURL, "https://")) {
		return nil, fmt.Errorf("invalid share url %q", sourceURL)
	}

	task := models.NewTask(sourceURL, strings.TrimSpace(accessCode))
	if err := o.store.Create(task); err != nil {
		return nil, err
	}

	o.logger.Info("task enqueued", "task", task.ID, "url", sourceURL)
	o.events.Publish(createdEvent(task))
	o.poke()
	return task, nil
}

// Cancel requests cancellation of a task. Pending tasks are cancelled
// immediately; a running task finishes its in-flight stage first, then
// stops before the next one. Terminal tasks cannot be cancelled.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (*models.Task, error) {
	task, err := o.store.Get(id)
	if err != nil {
		return nil, err
	}

	switch task.Status {
	case models.StatusPending:
		task.Status = models.StatusCancelled
		task.Message = "Cancelled"
		if err := o.store.Update(task); err != nil {
			return nil, err
		}
		o.logger.Info("task cancelled", "task", id)
		o.events.Publish(doneEvent(task))
		return task, nil

	case models.StatusRunning:
		o.mu.Lock()
		o.cancelled[id] = true
		o.mu.Unlock()

		// The task may have finished between the status read and the
		// flag write; drop the flag instead of leaking it.
		if current, err := o.store.Get(id); err == nil && current.Status.Terminal() {
			o.clearCancelFlag(id)
			return nil, fmt.Errorf("task %s already %s", id, current.Status)
		}

		o.logger.Info("cancellation requested", "task", id)
		return task, nil

	default:
		return nil, fmt.Errorf("task %s already %s", id, task.Status)
	}
}

// Delete removes a task from the queue entirely. A running task cannot be
// deleted; cancel it first and delete once it settles.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	task, err := o.store.Get(id)
	if err != nil {
		return err
	}
	if task.Status == models.StatusRunning {
		return fmt.Errorf("task %s is running, cancel it first", id)
	}

	if err := o.store.Delete(id); err != nil {
		return err
	}
	o.logger.Info("task deleted", "task", id)
	return nil
}

// List returns all tasks in submission order.
func (o *Orchestrator) List() ([]*models.Task, error) {
	return o.store.List()
}

// ClearCompleted removes terminal tasks from the store.
func (o *Orchestrator) ClearCompleted() (int, error) {
	return o.store.ClearCompleted()
}

// Run executes the run loop until ctx is cancelled. Any task found running
// at startup is failed as interrupted before new work begins; resuming a
// half-executed pipeline would repeat non-idempotent provider calls.
func (o *Orchestrator) Run(ctx context.Context) error {
	swept, err := o.store.MarkInterrupted()
	if err != nil {
		return fmt.Errorf("startup sweep failed: %w", err)
	}
	if swept > 0 {
		o.logger.Warn("failed interrupted tasks from previous run", "count", swept)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		task, err := o.store.NextPending()
		if err != nil {
			return err
		}

		if task != nil {
			o.execute(ctx, task)
			// Look for the next pending task immediately.
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.wake:
		case <-ticker.C:
		}
	}
}

// poke nudges the run loop without blocking.
func (o *Orchestrator) poke() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// cancelRequested reports whether cancellation was requested for a running
// task. The flag survives until the task reaches a terminal state.
func (o *Orchestrator) cancelRequested(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancelled[id]
}

func (o *Orchestrator) clearCancelFlag(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.cancelled, id)
}

// retryPolicyFor builds the retry policy for calls against one provider,
// refreshing that provider's session on an expired-auth failure.
func (o *Orchestrator) retryPolicyFor(provider models.Provider) retryPolicy {
	return retryPolicy{
		maxRetries: o.transfer.MaxRetries,
		delay:      o.transfer.RetryDelay(),
		refresh: func(ctx context.Context) error {
			_, err := o.sessions.Refresh(ctx, provider)
			return err
		},
	}
}
