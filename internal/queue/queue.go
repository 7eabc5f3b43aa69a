// Package queue implements a durable, at-least-once job queue on the SQLite
// store. Job identity (the video ID) dedups enqueues; expired locks are
// reclaimed so a crashed worker cannot wedge a job.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"yt_relay/internal/model"
	"yt_relay/internal/storage"
)

// Handler processes one claimed job. A returned error schedules a retry
// until the attempt budget is exhausted.
type Handler func(ctx context.Context, job *model.Job) error

// Options tune the queue. Zero values select the defaults.
type Options struct {
	Concurrency  int           // worker goroutines (default 5)
	MaxAttempts  int           // attempts before a job is parked (default 3)
	BackoffBase  time.Duration // first retry delay, doubles per attempt (default 2s)
	LockDuration time.Duration // lock window a worker must renew within (default 60s)
	MaxStalled   int           // lock-expiry reclaims before permanent failure (default 2)
	PollInterval time.Duration // idle claim polling interval (default 1s)
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.Concurrency <= 0 {
		out.Concurrency = 5
	}
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 3
	}
	if out.BackoffBase <= 0 {
		out.BackoffBase = 2 * time.Second
	}
	if out.LockDuration <= 0 {
		out.LockDuration = time.Minute
	}
	if out.MaxStalled <= 0 {
		out.MaxStalled = 2
	}
	if out.PollInterval <= 0 {
		out.PollInterval = time.Second
	}
	return out
}

// Queue owns the worker pool draining the jobs table.
type Queue struct {
	store   storage.Storage
	handler Handler
	log     *slog.Logger
	opts    Options
}

// New creates a Queue. The handler is invoked from up to
// Options.Concurrency goroutines.
func New(store storage.Storage, handler Handler, log *slog.Logger, opts Options) *Queue {
	return &Queue{
		store:   store,
		handler: handler,
		log:     log,
		opts:    opts.withDefaults(),
	}
}

// Enqueue validates and inserts a job keyed by its video ID. Returns false
// with a nil error when an identical key is already queued.
func (q *Queue) Enqueue(ctx context.Context, job *model.Job) (bool, error) {
	if job.VideoID == "" {
		return false, fmt.Errorf("job missing video id")
	}
	if job.ChannelID == "" {
		return false, fmt.Errorf("job missing channel id")
	}
	job.Key = job.VideoID
	if job.ReceivedAt.IsZero() {
		job.ReceivedAt = time.Now().UTC()
	}
	return q.store.EnqueueJob(ctx, job)
}

// Run starts the worker pool and the stall monitor, blocking until ctx is
// cancelled and all in-flight jobs finished.
func (q *Queue) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		q.stallMonitor(ctx)
	}()

	for i := 0; i < q.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.workerLoop(ctx)
		}()
	}

	wg.Wait()
}

func (q *Queue) workerLoop(ctx context.Context) {
	workerID := uuid.NewString()
	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		// Drain runnable jobs before going back to sleep.
		for ctx.Err() == nil {
			claimed, err := q.claimAndProcess(ctx, workerID)
			if err != nil {
				q.log.Error("claim job", "worker_id", workerID, "error", err)
				break
			}
			if !claimed {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (q *Queue) claimAndProcess(ctx context.Context, workerID string) (bool, error) {
	now := time.Now().UTC()
	job, err := q.store.ClaimJob(ctx, workerID, now, now.Add(-q.opts.LockDuration), q.opts.MaxStalled)
	if err != nil || job == nil {
		return false, err
	}

	if job.StalledCount > 0 {
		q.log.Warn("reclaimed stalled job", "job_key", job.Key, "stalled_count", job.StalledCount)
	}

	q.process(ctx, workerID, job)
	return true, nil
}

func (q *Queue) process(ctx context.Context, workerID string, job *model.Job) {
	done := make(chan struct{})
	go q.renewLock(ctx, job.ID, workerID, done)

	err := q.handler(ctx, job)
	close(done)

	if err == nil {
		if derr := q.store.CompleteJob(ctx, job.ID); derr != nil {
			q.log.Error("complete job", "job_key", job.Key, "error", derr)
		}
		return
	}

	attempt := job.Attempts + 1
	if attempt >= q.opts.MaxAttempts {
		q.log.Error("job failed permanently", "job_key", job.Key, "attempts", attempt, "error", err)
		if ferr := q.store.FailJob(ctx, job.ID, err.Error(), time.Now().UTC()); ferr != nil {
			q.log.Error("fail job", "job_key", job.Key, "error", ferr)
		}
		return
	}

	delay := q.opts.BackoffBase << (attempt - 1)
	next := time.Now().UTC().Add(delay)
	q.log.Warn("job failed, retrying", "job_key", job.Key, "attempt", attempt, "retry_in", delay, "error", err)
	if rerr := q.store.RetryJob(ctx, job.ID, next, err.Error()); rerr != nil {
		q.log.Error("retry job", "job_key", job.Key, "error", rerr)
	}
}

// renewLock keeps the claim fresh while the handler runs so the stall
// monitor does not reclaim an in-flight job.
func (q *Queue) renewLock(ctx context.Context, jobID int64, workerID string, done <-chan struct{}) {
	ticker := time.NewTicker(q.opts.LockDuration / 2)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.store.RenewJobLock(ctx, jobID, workerID, time.Now().UTC()); err != nil {
				q.log.Error("renew job lock", "job_id", jobID, "error", err)
			}
		}
	}
}

// stallMonitor parks jobs whose lock expired after the reclaim budget was
// spent; everything below the budget is reclaimed by ClaimJob directly.
func (q *Queue) stallMonitor(ctx context.Context) {
	ticker := time.NewTicker(q.opts.LockDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			n, err := q.store.FailStalledJobs(ctx, now.Add(-q.opts.LockDuration), q.opts.MaxStalled, now)
			if err != nil {
				q.log.Error("fail stalled jobs", "error", err)
				continue
			}
			if n > 0 {
				q.log.Warn("parked stalled jobs", "count", n)
			}
		}
	}
}
