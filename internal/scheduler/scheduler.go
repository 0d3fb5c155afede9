package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amishk599/jobmatch/internal/model"
)

// State is the worker's position in its Idle → Running → Sleeping cycle.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateSleeping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Options tunes the sync loop. Zero values take the defaults below.
type Options struct {
	BatchSize     int
	MaxAge        time.Duration // embeddings older than this are regenerated
	Interval      time.Duration // sleep after a completed batch
	RetryInterval time.Duration // sleep after a failed batch fetch
	CallTimeout   time.Duration // bound on each provider and store call

	// FailureBackoff holds a job out of batches after it fails to embed.
	// It doubles with each consecutive failure, up to MaxAge. Defaults to
	// Interval.
	FailureBackoff time.Duration
}

const (
	defaultBatchSize     = 50
	defaultMaxAge        = 7 * 24 * time.Hour
	defaultInterval      = time.Hour
	defaultRetryInterval = 5 * time.Minute
	defaultCallTimeout   = 30 * time.Second

	// Drain gives up after this many consecutive batches embed nothing.
	maxIdleDrainBatches = 3
)

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.MaxAge <= 0 {
		o.MaxAge = defaultMaxAge
	}
	if o.Interval <= 0 {
		o.Interval = defaultInterval
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = defaultRetryInterval
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = defaultCallTimeout
	}
	if o.FailureBackoff <= 0 {
		o.FailureBackoff = o.Interval
	}
	return o
}

// BatchReport summarizes one RunOnce pass.
type BatchReport struct {
	Fetched    int
	Embedded   int
	Failed     int
	FailedJobs []int64 // ascending
	Deferred   int     // stale jobs held back after earlier failures
	Duration   time.Duration
}

// Notifier is told about batches in which at least one job failed.
type Notifier interface {
	NotifyBatch(ctx context.Context, report BatchReport) error
}

// SyncWorker keeps job embeddings fresh. Each batch picks up jobs whose
// embedding is missing or stale, embeds them concurrently and stores the
// results.
type SyncWorker struct {
	embedder model.Embedder
	store    model.EmbeddingStore
	opts     Options
	notifier Notifier
	state    atomic.Int32
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	failing map[int64]jobBackoff
}

// jobBackoff is the retry state of a job whose last embedding attempt failed.
type jobBackoff struct {
	failures int
	until    time.Time
}

// NewSyncWorker creates a worker. The embedder is expected to carry its own
// retry and rate limiting.
func NewSyncWorker(embedder model.Embedder, store model.EmbeddingStore, opts Options, logger *slog.Logger) *SyncWorker {
	return &SyncWorker{
		embedder: embedder,
		store:    store,
		opts:     opts.withDefaults(),
		now:      time.Now,
		logger:   logger,
		failing:  make(map[int64]jobBackoff),
	}
}

// SetNotifier registers n to hear about batches with failed jobs. Call it
// before Run.
func (w *SyncWorker) SetNotifier(n Notifier) {
	w.notifier = n
}

// State reports what the worker is doing right now.
func (w *SyncWorker) State() State {
	return State(w.state.Load())
}

func (w *SyncWorker) setState(s State) {
	w.state.Store(int32(s))
}

// Run starts the sync loop. It runs one batch immediately, then sleeps for
// the interval (or the retry interval after a failed fetch) between batches.
// It returns nil when ctx is cancelled; a batch already in flight finishes
// first.
func (w *SyncWorker) Run(ctx context.Context) error {
	w.logger.Info("starting embedding sync",
		"interval", w.opts.Interval.String(),
		"batch_size", w.opts.BatchSize,
		"max_age", w.opts.MaxAge.String(),
	)

	for {
		wait := w.opts.Interval
		if _, err := w.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return w.shutdown()
			}
			w.logger.Error("embedding sync batch failed",
				"error", err,
				"retry_in", w.opts.RetryInterval.String(),
			)
			wait = w.opts.RetryInterval
		}

		w.setState(StateSleeping)
		select {
		case <-ctx.Done():
			return w.shutdown()
		case <-time.After(wait):
		}
	}
}

func (w *SyncWorker) shutdown() error {
	w.setState(StateIdle)
	w.logger.Info("shutting down embedding sync")
	return nil
}

// RunOnce processes a single batch. Per-job failures are logged and counted
// in the report; only a failure to fetch the batch is returned. A job that
// failed is skipped until its backoff expires, so the batch is filled with
// other stale jobs instead.
func (w *SyncWorker) RunOnce(ctx context.Context) (BatchReport, error) {
	if err := ctx.Err(); err != nil {
		return BatchReport{}, err
	}

	w.setState(StateRunning)
	defer w.setState(StateIdle)
	start := w.now()

	deferred := w.deferredJobs(start)
	fetchCtx, cancel := context.WithTimeout(ctx, w.opts.CallTimeout)
	jobs, err := w.store.StaleJobs(fetchCtx, w.opts.MaxAge, w.opts.BatchSize+len(deferred))
	cancel()
	if err != nil {
		return BatchReport{}, fmt.Errorf("fetching stale jobs: %w", err)
	}

	var skipped int
	jobs, skipped = w.withoutDeferred(jobs, deferred)
	report := BatchReport{Fetched: len(jobs), Deferred: skipped}
	if len(jobs) == 0 {
		w.logger.Debug("no stale embeddings")
		return report, nil
	}

	// The batch runs to completion even if ctx is cancelled mid-way.
	work := context.WithoutCancel(ctx)

	var (
		embedded atomic.Int32
		mu       sync.Mutex
		failed   []int64
	)
	g := new(errgroup.Group)
	g.SetLimit(w.opts.BatchSize)
	for _, job := range jobs {
		g.Go(func() error {
			if err := w.syncJob(work, job); err != nil {
				mu.Lock()
				failed = append(failed, job.ID)
				mu.Unlock()
				retryAt := w.recordFailure(job.ID)
				w.logger.Warn("embedding job failed",
					"job_id", job.ID,
					"title", job.Title,
					"retry_at", retryAt.Format(time.RFC3339),
					"error", err,
				)
				return nil
			}
			w.clearFailure(job.ID)
			embedded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	slices.Sort(failed)
	report.Embedded = int(embedded.Load())
	report.Failed = len(failed)
	report.FailedJobs = failed
	report.Duration = w.now().Sub(start)

	w.logger.Info("embedding sync batch complete",
		"fetched", report.Fetched,
		"embedded", report.Embedded,
		"failed", report.Failed,
		"deferred", report.Deferred,
		"duration", report.Duration.String(),
	)

	if report.Failed > 0 && w.notifier != nil {
		notifyCtx, cancel := context.WithTimeout(work, w.opts.CallTimeout)
		if err := w.notifier.NotifyBatch(notifyCtx, report); err != nil {
			w.logger.Error("batch notification failed", "error", err)
		}
		cancel()
	}
	return report, nil
}

// Drain runs batches back to back until every stale job has been tried or
// several batches in a row embed nothing. Jobs that fail are deferred, so
// each batch moves on to jobs not yet tried. It returns the summed report;
// Deferred is the count still held back after the last batch.
func (w *SyncWorker) Drain(ctx context.Context) (BatchReport, error) {
	var total BatchReport
	idle := 0
	for {
		report, err := w.RunOnce(ctx)
		total.Fetched += report.Fetched
		total.Embedded += report.Embedded
		total.Failed += report.Failed
		total.FailedJobs = append(total.FailedJobs, report.FailedJobs...)
		total.Deferred = report.Deferred
		total.Duration += report.Duration
		if err != nil {
			return total, err
		}
		if report.Fetched < w.opts.BatchSize {
			return total, nil
		}
		if report.Embedded > 0 {
			idle = 0
			continue
		}
		idle++
		if idle >= maxIdleDrainBatches {
			w.logger.Warn("embedding sync drain stopped, no batch is succeeding",
				"batches", idle,
				"failed", total.Failed,
			)
			return total, nil
		}
	}
}

// deferredJobs returns the jobs still inside their failure backoff at now.
// Entries that expired more than MaxAge ago are forgotten.
func (w *SyncWorker) deferredJobs(now time.Time) map[int64]struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	ids := make(map[int64]struct{})
	for id, b := range w.failing {
		switch {
		case now.Before(b.until):
			ids[id] = struct{}{}
		case now.Sub(b.until) > w.opts.MaxAge:
			delete(w.failing, id)
		}
	}
	return ids
}

// withoutDeferred drops deferred jobs and trims the rest to one batch. It
// returns the kept jobs and how many were dropped.
func (w *SyncWorker) withoutDeferred(jobs []model.JobPosting, deferred map[int64]struct{}) ([]model.JobPosting, int) {
	kept := make([]model.JobPosting, 0, min(len(jobs), w.opts.BatchSize))
	skipped := 0
	for _, job := range jobs {
		if _, ok := deferred[job.ID]; ok {
			skipped++
			continue
		}
		if len(kept) < w.opts.BatchSize {
			kept = append(kept, job)
		}
	}
	return kept, skipped
}

// recordFailure pushes the job's next attempt out and returns when it is due.
func (w *SyncWorker) recordFailure(jobID int64) time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()

	b := w.failing[jobID]
	b.failures++
	delay := w.opts.FailureBackoff
	for i := 1; i < b.failures && delay < w.opts.MaxAge; i++ {
		delay *= 2
	}
	delay = min(delay, w.opts.MaxAge)
	b.until = w.now().Add(delay)
	w.failing[jobID] = b
	return b.until
}

func (w *SyncWorker) clearFailure(jobID int64) {
	w.mu.Lock()
	delete(w.failing, jobID)
	w.mu.Unlock()
}

func (w *SyncWorker) syncJob(ctx context.Context, job model.JobPosting) error {
	text := JobText(job)
	if text == "" {
		return fmt.Errorf("job %d has no text to embed", job.ID)
	}

	embedCtx, cancel := context.WithTimeout(ctx, w.opts.CallTimeout)
	vec, err := w.embedder.Embed(embedCtx, text)
	cancel()
	if err != nil {
		return fmt.Errorf("embedding job %d: %w", job.ID, err)
	}

	storeCtx, cancel := context.WithTimeout(ctx, w.opts.CallTimeout)
	defer cancel()
	if err := w.store.UpsertEmbedding(storeCtx, job.ID, vec, w.now()); err != nil {
		return fmt.Errorf("storing embedding for job %d: %w", job.ID, err)
	}
	return nil
}

// JobText is the text embedded for a posting. Empty fields are left out.
func JobText(job model.JobPosting) string {
	segments := []struct{ label, value string }{
		{"Title", job.Title},
		{"Service", job.Service},
		{"Level", job.Seniority},
		{"Description", job.Description},
		{"Industry", job.Industry},
	}
	var parts []string
	for _, s := range segments {
		if v := strings.TrimSpace(s.value); v != "" {
			parts = append(parts, s.label+": "+v)
		}
	}
	return strings.Join(parts, " | ")
}
