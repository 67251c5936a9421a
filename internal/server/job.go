package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apierrors "github.com/copyleftdev/nlpbridge/internal/errors"
	"github.com/copyleftdev/nlpbridge/internal/metrics"
	"github.com/copyleftdev/nlpbridge/internal/optimization/solver"
)

// JobState represents the current state of a job.
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Terminal reports whether no further transition can happen.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Job is one solve running in its own goroutine on its own Workspace.
type Job struct {
	ID        string
	Problem   string
	Algorithm string
	State     JobState
	Created   time.Time
	Started   *time.Time
	Finished  *time.Time
	Result    *ResultView
	Error     *apierrors.Body

	cancel context.CancelFunc
	done   chan struct{}
}

func (j *Job) view() JobView {
	return JobView{
		ID:        j.ID,
		State:     j.State,
		Problem:   j.Problem,
		Algorithm: j.Algorithm,
		Created:   j.Created,
		Started:   j.Started,
		Finished:  j.Finished,
		Result:    j.Result,
		Error:     j.Error,
	}
}

// Default retention of finished jobs.
const (
	DefaultJobRetention = time.Hour
	DefaultKeptJobs     = 1000
)

// JobManager manages the lifecycle of jobs. At most limit jobs are active
// (pending or running) at once. Finished jobs are dropped once they are
// older than maxAge or more than keep of them exist.
type JobManager struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	active int
	limit  int
	closed bool
	wg     sync.WaitGroup

	maxAge time.Duration
	keep   int
	now    func() time.Time

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewJobManager creates a JobManager. A non-positive limit means one job.
func NewJobManager(limit int, logger *zap.Logger, m *metrics.Metrics) *JobManager {
	if limit <= 0 {
		limit = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobManager{
		jobs:    make(map[string]*Job),
		limit:   limit,
		maxAge:  DefaultJobRetention,
		keep:    DefaultKeptJobs,
		now:     time.Now,
		logger:  logger.Named("jobs"),
		metrics: m,
	}
}

// SetRetention changes how long finished jobs are kept. A zero maxAge keeps
// them regardless of age; keep is the most finished jobs held at once and
// is raised to one when not positive.
func (jm *JobManager) SetRetention(maxAge time.Duration, keep int) {
	if keep <= 0 {
		keep = 1
	}
	jm.mu.Lock()
	jm.maxAge, jm.keep = maxAge, keep
	jm.mu.Unlock()
}

// Prune drops expired finished jobs and returns how many were removed.
// Start prunes on every call, so the job table stays bounded.
func (jm *JobManager) Prune() int {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	return jm.prune()
}

func (jm *JobManager) prune() int {
	now := jm.now()
	finished := make([]*Job, 0, len(jm.jobs))
	removed := 0
	for id, job := range jm.jobs {
		if !job.State.Terminal() || job.Finished == nil {
			continue
		}
		if jm.maxAge > 0 && now.Sub(*job.Finished) > jm.maxAge {
			delete(jm.jobs, id)
			removed++
			continue
		}
		finished = append(finished, job)
	}
	if extra := len(finished) - jm.keep; extra > 0 {
		sort.Slice(finished, func(i, k int) bool { return finished[i].Finished.Before(*finished[k].Finished) })
		for _, job := range finished[:extra] {
			delete(jm.jobs, job.ID)
		}
		removed += extra
	}
	if removed > 0 {
		jm.logger.Debug("pruned finished jobs", zap.Int("removed", removed), zap.Int("remaining", len(jm.jobs)))
	}
	return removed
}

// Start registers a job for ws and runs it. The manager owns ws from here
// on and closes it when the run ends. On error ws is closed as well.
func (jm *JobManager) Start(problem string, ws *solver.Workspace) (JobView, error) {
	jm.mu.Lock()
	if jm.closed {
		jm.mu.Unlock()
		ws.Close()
		return JobView{}, fmt.Errorf("%w: server is shutting down", apierrors.ErrBusy)
	}
	if jm.active >= jm.limit {
		jm.mu.Unlock()
		ws.Close()
		return JobView{}, fmt.Errorf("%w: %d jobs already active", apierrors.ErrBusy, jm.limit)
	}

	jm.prune()

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:        uuid.New().String(),
		Problem:   problem,
		Algorithm: ws.Algorithm().String(),
		State:     StatePending,
		Created:   jm.now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	jm.jobs[job.ID] = job
	jm.active++
	jm.wg.Add(1)
	view := job.view()
	jm.mu.Unlock()

	jm.metrics.JobStarted()
	go jm.run(ctx, job, ws)
	return view, nil
}

func (jm *JobManager) run(ctx context.Context, job *Job, ws *solver.Workspace) {
	defer jm.wg.Done()
	defer close(job.done)
	defer job.cancel()
	defer ws.Close()

	logger := jm.logger.With(zap.String("job_id", job.ID), zap.String("algorithm", job.Algorithm))

	jm.mu.Lock()
	now := jm.now()
	job.Started = &now
	if job.State == StatePending {
		job.State = StateRunning
	}
	jm.mu.Unlock()
	logger.Debug("job started", zap.String("problem", job.Problem))

	res, err := ws.Optimize(ctx)

	jm.mu.Lock()
	end := jm.now()
	job.Finished = &end
	switch {
	case err == nil:
		job.State = StateCompleted
		job.Result = NewResultView(res)
	case errors.Is(err, context.Canceled):
		job.State = StateCancelled
	default:
		job.State = StateFailed
		body := apierrors.Describe(err)
		job.Error = &body
	}
	state := job.State
	jm.active--
	jm.mu.Unlock()

	jm.metrics.JobFinished(string(state))
	if state == StateFailed {
		logger.Warn("job failed", zap.Error(err))
		return
	}
	logger.Info("job finished", zap.String("state", string(state)), zap.Duration("elapsed", end.Sub(*job.Started)))
}

// Get returns a snapshot of the job.
func (jm *JobManager) Get(id string) (JobView, error) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, ok := jm.jobs[id]
	if !ok {
		return JobView{}, apierrors.NotFound("job %s", id)
	}
	return job.view(), nil
}

// List returns snapshots of all jobs, oldest first.
func (jm *JobManager) List() []JobView {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	views := make([]JobView, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		views = append(views, job.view())
	}
	sort.Slice(views, func(i, k int) bool { return views[i].Created.Before(views[k].Created) })
	return views
}

// Cancel requests the job to stop. The state becomes cancelled once the
// engine has returned; use Wait to observe it.
func (jm *JobManager) Cancel(id string) (JobView, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, ok := jm.jobs[id]
	if !ok {
		return JobView{}, apierrors.NotFound("job %s", id)
	}
	if job.State.Terminal() {
		return job.view(), apierrors.Conflict("job %s is already %s", id, job.State)
	}
	job.cancel()
	jm.logger.Info("job cancellation requested", zap.String("job_id", id))
	return job.view(), nil
}

// Wait blocks until the job finishes or ctx is done.
func (jm *JobManager) Wait(ctx context.Context, id string) (JobView, error) {
	jm.mu.RLock()
	job, ok := jm.jobs[id]
	jm.mu.RUnlock()
	if !ok {
		return JobView{}, apierrors.NotFound("job %s", id)
	}

	select {
	case <-job.done:
	case <-ctx.Done():
		return JobView{}, ctx.Err()
	}

	jm.mu.RLock()
	defer jm.mu.RUnlock()
	return job.view(), nil
}

// Close cancels every running job and waits for them to return.
func (jm *JobManager) Close() error {
	jm.mu.Lock()
	jm.closed = true
	for _, job := range jm.jobs {
		job.cancel()
	}
	jm.mu.Unlock()

	jm.wg.Wait()
	return nil
}
