package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/bm-repricer/internal/model"
)

// Handler is the work performed by a job.
type Handler interface {
	Run(ctx context.Context) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ctx context.Context) error

func (f HandlerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// StatusStore persists job statuses across restarts.
type StatusStore interface {
	SaveJobStatus(ctx context.Context, status model.ScheduledJobStatus) error
	ListJobStatuses(ctx context.Context) ([]model.ScheduledJobStatus, error)
}

// Observer receives job outcomes. Implemented by internal/metrics.
type Observer interface {
	ObserveJob(name string, d time.Duration, err error)
}

// JobOption configures a scheduled job.
type JobOption func(*job)

// WithRunOnStart runs the job as soon as the registry starts instead of
// waiting one cadence.
func WithRunOnStart() JobOption {
	return func(j *job) {
		j.runOnStart = true
	}
}

type job struct {
	name       string
	cadence    time.Duration
	handler    Handler
	runOnStart bool

	// Guarded by JobRegistry.mu.
	running   bool
	nextRun   time.Time
	lastRun   *time.Time
	lastError string

	reschedule chan struct{}
}

// JobRegistry owns all scheduled jobs.
type JobRegistry struct {
	mu   sync.Mutex
	jobs map[string]*job

	now      func() time.Time
	logger   *slog.Logger
	store    StatusStore
	observer Observer

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// Option configures a JobRegistry.
type Option func(*JobRegistry)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *JobRegistry) {
		r.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *JobRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithStatusStore persists statuses after every run.
func WithStatusStore(s StatusStore) Option {
	return func(r *JobRegistry) {
		r.store = s
	}
}

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(r *JobRegistry) {
		r.observer = o
	}
}

// New creates an empty JobRegistry.
func New(opts ...Option) *JobRegistry {
	r := &JobRegistry{
		jobs:   make(map[string]*job),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Schedule registers a job. Jobs scheduled after Start begin immediately.
func (r *JobRegistry) Schedule(name string, cadence time.Duration, h Handler, opts ...JobOption) error {
	if name == "" {
		return model.NewValidationError("job_name", "is required")
	}
	if cadence <= 0 {
		return model.NewValidationError("cadence", "must be > 0")
	}
	if h == nil {
		return model.NewValidationError("handler", "is required")
	}

	j := &job{
		name:       name,
		cadence:    cadence,
		handler:    h,
		reschedule: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(j)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[name]; exists {
		return model.NewValidationError("job_name", fmt.Sprintf("%q already scheduled", name))
	}
	j.nextRun = r.initialRun(j)
	r.jobs[name] = j

	if r.started {
		r.wg.Add(1)
		go r.loop(j)
	}
	return nil
}

func (r *JobRegistry) initialRun(j *job) time.Time {
	now := r.now()
	if j.runOnStart {
		return now
	}
	return now.Add(j.cadence)
}

// Restore applies persisted last_run/last_error values to registered jobs.
func (r *JobRegistry) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	statuses, err := r.store.ListJobStatuses(ctx)
	if err != nil {
		return fmt.Errorf("list job statuses: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range statuses {
		j, ok := r.jobs[st.JobName]
		if !ok {
			continue
		}
		j.lastRun = st.LastRun
		j.lastError = st.LastError
	}
	return nil
}

// Start begins the cadence loop of every job.
func (r *JobRegistry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return errors.New("scheduler already started")
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.started = true

	for _, j := range r.jobs {
		j.nextRun = r.initialRun(j)
		r.wg.Add(1)
		go r.loop(j)
	}

	r.logger.Info("scheduler started", "jobs", len(r.jobs))
	return nil
}

// Stop cancels all loops and waits for in-flight runs to return.
func (r *JobRegistry) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loop waits for each job's next_run and executes it.
func (r *JobRegistry) loop(j *job) {
	defer r.wg.Done()

	timer := time.NewTimer(r.untilNext(j))
	defer timer.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-timer.C:
			if err := r.execute(r.ctx, j); errors.Is(err, model.ErrJobBusy) {
				r.logger.Debug("scheduled run skipped, job busy", "job", j.name)
			}
		case <-j.reschedule:
		}
		timer.Reset(r.untilNext(j))
	}
}

func (r *JobRegistry) untilNext(j *job) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j.running {
		// The in-flight run signals reschedule on completion.
		return j.cadence
	}
	if d := j.nextRun.Sub(r.now()); d > 0 {
		return d
	}
	return 0
}

// Run executes a job synchronously, bypassing its cadence. It returns
// ErrJobBusy without running if the job is already executing, otherwise the
// handler's error.
func (r *JobRegistry) Run(ctx context.Context, name string) error {
	j, err := r.lookup(name)
	if err != nil {
		return err
	}
	return r.execute(ctx, j)
}

// Trigger starts a job immediately in the background. It returns ErrJobBusy
// if the job is already running; the in-flight run is not cancelled.
func (r *JobRegistry) Trigger(name string) error {
	j, err := r.lookup(name)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if j.running {
		r.mu.Unlock()
		return fmt.Errorf("trigger %s: %w", name, model.ErrJobBusy)
	}
	// Claim the guard before returning so a second Trigger reports busy.
	j.running = true
	ctx := r.ctx
	r.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.runClaimed(ctx, j)
	}()
	return nil
}

// TriggerAll triggers every job. The result maps job name to nil (started)
// or an error wrapping ErrJobBusy.
func (r *JobRegistry) TriggerAll() map[string]error {
	results := make(map[string]error)
	for _, name := range r.names() {
		results[name] = r.Trigger(name)
	}
	return results
}

// Status returns the status of one job.
func (r *JobRegistry) Status(name string) (model.ScheduledJobStatus, error) {
	j, err := r.lookup(name)
	if err != nil {
		return model.ScheduledJobStatus{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return statusLocked(j), nil
}

// Statuses returns the status of every job, sorted by name.
func (r *JobRegistry) Statuses() []model.ScheduledJobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.ScheduledJobStatus, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, statusLocked(j))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].JobName < out[b].JobName })
	return out
}

// Len returns the number of registered jobs.
func (r *JobRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func (r *JobRegistry) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *JobRegistry) lookup(name string) (*job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[name]
	if !ok {
		return nil, fmt.Errorf("job %q: %w", name, model.ErrUnknownJob)
	}
	return j, nil
}

func statusLocked(j *job) model.ScheduledJobStatus {
	st := model.ScheduledJobStatus{
		JobName:   j.name,
		Cadence:   j.cadence,
		IsRunning: j.running,
		NextRun:   j.nextRun,
		LastError: j.lastError,
	}
	if j.lastRun != nil {
		t := *j.lastRun
		st.LastRun = &t
	}
	return st
}

// execute claims the guard and runs the job synchronously.
func (r *JobRegistry) execute(ctx context.Context, j *job) error {
	r.mu.Lock()
	if j.running {
		r.mu.Unlock()
		return fmt.Errorf("run %s: %w", j.name, model.ErrJobBusy)
	}
	j.running = true
	r.mu.Unlock()

	return r.runClaimed(ctx, j)
}

// runClaimed runs a job whose guard is already held and records the outcome.
func (r *JobRegistry) runClaimed(ctx context.Context, j *job) error {
	start := r.now()

	r.mu.Lock()
	j.lastRun = &start
	st := statusLocked(j)
	r.mu.Unlock()
	r.persist(ctx, st)

	r.logger.Debug("job started", "job", j.name)
	err := safeRun(ctx, j.handler)
	end := r.now()

	r.mu.Lock()
	j.running = false
	j.nextRun = end.Add(j.cadence)
	j.lastError = ""
	if err != nil {
		j.lastError = err.Error()
	}
	st = statusLocked(j)
	r.mu.Unlock()

	select {
	case j.reschedule <- struct{}{}:
	default:
	}

	if r.observer != nil {
		r.observer.ObserveJob(j.name, end.Sub(start), err)
	}
	r.persist(ctx, st)

	if err != nil {
		r.logger.Warn("job failed",
			"job", j.name,
			"duration", end.Sub(start),
			"error", err,
		)
	} else {
		r.logger.Info("job finished",
			"job", j.name,
			"duration", end.Sub(start),
			"next_run", st.NextRun,
		)
	}
	return err
}

func (r *JobRegistry) persist(ctx context.Context, st model.ScheduledJobStatus) {
	if r.store == nil {
		return
	}
	// Persist even when the run context was cancelled by shutdown.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.store.SaveJobStatus(ctx, st); err != nil {
		r.logger.Warn("failed to persist job status", "job", st.JobName, "error", err)
	}
}

// safeRun converts handler panics into errors.
func safeRun(ctx context.Context, h Handler) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
	}()
	return h.Run(ctx)
}
