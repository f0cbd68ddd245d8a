package prefetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/learntube/learntube/internal/metrics"
	"github.com/learntube/learntube/internal/storage"
)

// JobType identifies content prefetch jobs in the queue.
const JobType = "content_prefetch"

const defaultMaxAttempts = 4

// JobStore abstracts the job queue operations.
type JobStore interface {
	EnqueueJob(ctx context.Context, job storage.Job) error
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
}

// StepResolver resolves and stores content for one roadmap step.
type StepResolver interface {
	ResolveStep(ctx context.Context, stepID string) (int, error)
}

type payload struct {
	StepID string `json:"step_id"`
}

// Queue schedules prefetch jobs. It satisfies roadmap.Prefetcher.
type Queue struct {
	store JobStore
}

// NewQueue creates a Queue on top of the job store.
func NewQueue(store JobStore) *Queue {
	return &Queue{store: store}
}

// EnqueuePrefetch schedules content resolution for stepID.
func (q *Queue) EnqueuePrefetch(ctx context.Context, stepID string) error {
	body, err := json.Marshal(payload{StepID: stepID})
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}
	return q.store.EnqueueJob(ctx, storage.Job{
		ID:          uuid.NewString(),
		Type:        JobType,
		PayloadJSON: string(body),
		MaxAttempts: defaultMaxAttempts,
	})
}

// Worker processes content_prefetch jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	resolver StepResolver
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, resolver StepResolver, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		resolver: resolver,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("prefetch iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// Start runs the worker in its own goroutine. The returned channel is
// closed once Run has returned, which includes recording the outcome of a
// job that was in progress when ctx was cancelled.
func (w *Worker) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	return done
}

// RunOnce claims and processes a single prefetch job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	// A claimed job must leave the running state even during shutdown.
	record := context.WithoutCancel(ctx)

	if err := w.processJob(ctx, job); err != nil {
		metrics.PrefetchJobs.WithLabelValues("retry").Inc()
		w.logger.Warn("prefetch job failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
		if failErr := w.store.FailJob(record, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(record, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var p payload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &p); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	n, err := w.resolver.ResolveStep(ctx, p.StepID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// The roadmap was replaced before the job ran.
		metrics.PrefetchJobs.WithLabelValues("stale").Inc()
		w.logger.Info("prefetch step no longer exists", "step", p.StepID)
		return nil
	case err != nil:
		return fmt.Errorf("resolving step %s: %w", p.StepID, err)
	}

	metrics.PrefetchJobs.WithLabelValues("resolved").Inc()
	w.logger.Info("prefetched step content", "step", p.StepID, "videos", n)
	return nil
}
