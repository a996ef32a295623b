// Package tracker polls the service for task status until a terminal state
// is observed. Status transitions come from server responses only; the
// tracker never invents one locally.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"easel/internal/imageapi"
	"easel/internal/logging"
)

// DefaultBaseInterval is the polling interval before backoff widens it.
const DefaultBaseInterval = 3 * time.Second

// retryFloor is the minimum delay before retrying after a failed status
// fetch. A fetch failure does not advance the backoff counter.
const retryFloor = 5 * time.Second

// StatusClient is the slice of the service API the tracker needs.
type StatusClient interface {
	Task(ctx context.Context, taskID string) (*imageapi.Task, error)
	Cancel(ctx context.Context, taskID string) (*imageapi.CancelResponse, error)
}

// Handlers receives lifecycle callbacks for one tracked task. Any field may
// be nil. Re-tracking a task replaces the whole set; only the latest set
// observes subsequent events.
type Handlers struct {
	// OnUpdate fires on every non-terminal status fetch.
	OnUpdate func(imageapi.Task)
	// OnComplete fires exactly once when the task reaches completed.
	OnComplete func(imageapi.Task)
	// OnError fires exactly once when the task reaches failed.
	OnError func(imageapi.Task, string)
}

// tracking is the per-task polling state. One goroutine owns the loop; the
// handler slot is swapped atomically so re-tracking never restarts it.
type tracking struct {
	id       string
	cancel   context.CancelFunc
	handlers atomic.Pointer[Handlers]

	mu          sync.Mutex
	attempts    int
	last        imageapi.Task
	seen        bool
	done        bool
	neutralized bool
}

// record stores the latest observed task. It refuses once neutralized so a
// late response from an untracked loop cannot touch newer state.
func (j *tracking) record(task imageapi.Task) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.neutralized {
		return false
	}
	j.last = task
	j.seen = true
	return true
}

// markDone flips the terminal flag. Returns true only on the first call, so
// terminal handlers fire at most once per tracking.
func (j *tracking) markDone() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.done || j.neutralized {
		return false
	}
	j.done = true
	return true
}

func (j *tracking) terminal() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.done
}

func (j *tracking) bumpAttempts() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts++
	return j.attempts
}

func (j *tracking) neutralize() {
	j.mu.Lock()
	j.neutralized = true
	j.mu.Unlock()
	j.cancel()
}

func (j *tracking) snapshot() (imageapi.Task, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last, j.seen
}

// Tracker polls tracked tasks with adaptive backoff.
type Tracker struct {
	client       StatusClient
	baseInterval time.Duration
	retryFloor   time.Duration
	logger       *slog.Logger

	mu   sync.Mutex
	jobs map[string]*tracking
}

// New creates a tracker. A non-positive baseInterval falls back to
// DefaultBaseInterval.
func New(client StatusClient, baseInterval time.Duration, logger *slog.Logger) *Tracker {
	if baseInterval <= 0 {
		baseInterval = DefaultBaseInterval
	}
	return &Tracker{
		client:       client,
		baseInterval: baseInterval,
		retryFloor:   retryFloor,
		logger:       logging.NewComponentLogger(logger, "tracker"),
		jobs:         make(map[string]*tracking),
	}
}

// Track starts polling taskID, fetching status immediately and then on the
// backoff schedule. Tracking an already-tracked id swaps the handler slot in
// place: the loop keeps running, the attempt counter keeps its value, and
// only the new handlers observe later events.
func (t *Tracker) Track(taskID string, handlers Handlers) {
	t.mu.Lock()
	if existing, ok := t.jobs[taskID]; ok {
		existing.handlers.Store(&handlers)
		t.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &tracking{id: taskID, cancel: cancel}
	job.handlers.Store(&handlers)
	t.jobs[taskID] = job
	t.mu.Unlock()

	t.logger.Debug("tracking task", logging.Args(logging.String("task_id", taskID))...)
	go t.run(ctx, job)
}

// Untrack stops polling taskID and neutralizes any in-flight fetch so its
// response cannot touch state recorded after this call. Unknown ids are a
// no-op.
func (t *Tracker) Untrack(taskID string) {
	t.mu.Lock()
	job, ok := t.jobs[taskID]
	if ok {
		delete(t.jobs, taskID)
	}
	t.mu.Unlock()
	if ok {
		job.neutralize()
	}
}

// Close untracks everything. Used at CLI shutdown.
func (t *Tracker) Close() {
	t.mu.Lock()
	jobs := make([]*tracking, 0, len(t.jobs))
	for _, job := range t.jobs {
		jobs = append(jobs, job)
	}
	t.jobs = make(map[string]*tracking)
	t.mu.Unlock()
	for _, job := range jobs {
		job.neutralize()
	}
}

// Snapshot returns the last observed record for taskID. The second value is
// false when the id is untracked or no fetch has landed yet.
func (t *Tracker) Snapshot(taskID string) (imageapi.Task, bool) {
	t.mu.Lock()
	job, ok := t.jobs[taskID]
	t.mu.Unlock()
	if !ok {
		return imageapi.Task{}, false
	}
	return job.snapshot()
}

// Cancel asks the server to cancel taskID and reconciles with one immediate
// status fetch. It reports whether the server accepted the cancellation; a
// task past pending cannot be forced. Cancelling a task already observed
// terminal is a local no-op.
func (t *Tracker) Cancel(ctx context.Context, taskID string) (bool, error) {
	t.mu.Lock()
	job := t.jobs[taskID]
	t.mu.Unlock()

	if job != nil && job.terminal() {
		return false, nil
	}

	_, err := t.client.Cancel(ctx, taskID)
	if job != nil {
		t.observe(ctx, job)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *Tracker) run(ctx context.Context, job *tracking) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		delay, stop := t.poll(ctx, job)
		if stop {
			return
		}
		timer.Reset(delay)
	}
}

// poll performs one status fetch and returns the delay before the next one,
// or stop=true when the loop should end.
func (t *Tracker) poll(ctx context.Context, job *tracking) (time.Duration, bool) {
	task, err := t.client.Task(ctx, job.id)
	if ctx.Err() != nil {
		return 0, true
	}
	if err != nil {
		t.logger.Debug("status fetch failed",
			logging.Args(logging.String("task_id", job.id), logging.Error(err))...)
		return t.failureInterval(), false
	}

	terminal := t.observeTask(job, *task)
	if terminal {
		return 0, true
	}
	attempts := job.bumpAttempts()
	return t.pollInterval(attempts), false
}

// observe fetches the current status once and applies it, outside the loop
// schedule. Used by Cancel to reconcile.
func (t *Tracker) observe(ctx context.Context, job *tracking) {
	task, err := t.client.Task(ctx, job.id)
	if err != nil {
		t.logger.Debug("reconcile fetch failed",
			logging.Args(logging.String("task_id", job.id), logging.Error(err))...)
		return
	}
	t.observeTask(job, *task)
}

// observeTask records a server response and fires handlers. Terminal states
// fire their handler at most once even when the loop and a reconcile fetch
// observe them concurrently.
func (t *Tracker) observeTask(job *tracking, task imageapi.Task) bool {
	if !job.record(task) {
		return true
	}

	if !task.IsTerminal() {
		if handlers := job.handlers.Load(); handlers.OnUpdate != nil {
			handlers.OnUpdate(task)
		}
		return false
	}

	if job.markDone() {
		job.cancel()
		// The slot is loaded after winning markDone; a re-track that lands
		// during the observation fires its replacement handlers, not the old ones.
		handlers := job.handlers.Load()
		switch {
		case task.IsCompleted():
			if handlers.OnComplete != nil {
				handlers.OnComplete(task)
			}
		case task.IsFailed():
			if handlers.OnError != nil {
				handlers.OnError(task, task.ErrorMessage())
			}
		}
		t.logger.Debug("task reached terminal status",
			logging.Args(logging.String("task_id", job.id), logging.String("status", string(task.Status)))...)
	}
	return true
}

// pollInterval widens the delay as a task stays non-terminal: the base
// interval for the first five fetches, 1.5x through twenty, 3x beyond.
func (t *Tracker) pollInterval(attempts int) time.Duration {
	switch {
	case attempts <= 5:
		return t.baseInterval
	case attempts <= 20:
		return t.baseInterval + t.baseInterval/2
	default:
		return 3 * t.baseInterval
	}
}

// failureInterval is the retry delay after a failed fetch: the base interval,
// but never below the floor.
func (t *Tracker) failureInterval() time.Duration {
	if t.baseInterval > t.retryFloor {
		return t.baseInterval
	}
	return t.retryFloor
}
