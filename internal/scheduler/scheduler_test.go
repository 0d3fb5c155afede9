package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amishk599/jobmatch/internal/model"
	"github.com/amishk599/jobmatch/internal/store"
)

// --- Mock implementations ---

// scriptedEmbedder fails for texts containing any key of failures.
type scriptedEmbedder struct {
	failures map[string]error
	delay    time.Duration
	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (e *scriptedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	n := e.inFlight.Add(1)
	defer e.inFlight.Add(-1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if e.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.delay):
		}
	}
	for key, err := range e.failures {
		if strings.Contains(text, key) {
			return nil, err
		}
	}
	return []float32{1, 0, 0}, nil
}

// countingStore records upserts on top of a MemoryStore.
type countingStore struct {
	*store.MemoryStore
	upserts  atomic.Int32
	fetchErr error
	fetches  atomic.Int32
}

func (s *countingStore) StaleJobs(ctx context.Context, maxAge time.Duration, limit int) ([]model.JobPosting, error) {
	s.fetches.Add(1)
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.MemoryStore.StaleJobs(ctx, maxAge, limit)
}

func (s *countingStore) UpsertEmbedding(ctx context.Context, jobID int64, vector []float32, at time.Time) error {
	s.upserts.Add(1)
	return s.MemoryStore.UpsertEmbedding(ctx, jobID, vector, at)
}

// recordingNotifier keeps every report it is sent.
type recordingNotifier struct {
	reports []BatchReport
	err     error
}

func (n *recordingNotifier) NotifyBatch(_ context.Context, r BatchReport) error {
	n.reports = append(n.reports, r)
	return n.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T, n int) *countingStore {
	t.Helper()
	s := &countingStore{MemoryStore: store.NewMemoryStore(3)}
	for i := 1; i <= n; i++ {
		job := model.JobPosting{ID: int64(i), Title: fmt.Sprintf("Job %d", i), Service: "Audit"}
		if err := s.AddJob(context.Background(), job); err != nil {
			t.Fatalf("AddJob: %v", err)
		}
	}
	return s
}

// --- Tests ---

func TestRunOnce_PartialFailure(t *testing.T) {
	s := newStore(t, 3)
	emb := &scriptedEmbedder{failures: map[string]error{
		"Job 2": fmt.Errorf("embed: %w", model.ErrUnavailable),
	}}
	w := NewSyncWorker(emb, s, Options{BatchSize: 10}, discardLogger())

	report, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Fetched != 3 || report.Embedded != 2 || report.Failed != 1 {
		t.Errorf("report = %+v, want fetched 3, embedded 2, failed 1", report)
	}
	if got := s.upserts.Load(); got != 2 {
		t.Errorf("upserts = %d, want 2", got)
	}
	if _, err := s.Embedding(context.Background(), 2); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("job 2 should have no embedding, got err %v", err)
	}

	// The failed job is still stale and is picked up next time.
	stale, _ := s.StaleJobs(context.Background(), time.Hour, 10)
	if len(stale) != 1 || stale[0].ID != 2 {
		t.Errorf("stale after batch = %v, want [job 2]", stale)
	}
}

func TestRunOnce_NotifiesOnFailure(t *testing.T) {
	s := newStore(t, 4)
	emb := &scriptedEmbedder{failures: map[string]error{
		"Job 3": model.ErrUnavailable,
		"Job 1": model.ErrRateLimited,
	}}
	n := &recordingNotifier{err: errors.New("webhook down")}
	w := NewSyncWorker(emb, s, Options{BatchSize: 10}, discardLogger())
	w.SetNotifier(n)

	report, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v (notifier errors must not fail the batch)", err)
	}
	if len(n.reports) != 1 {
		t.Fatalf("notifications = %d, want 1", len(n.reports))
	}
	got := n.reports[0].FailedJobs
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("FailedJobs = %v, want [1 3]", got)
	}
	if report.Embedded != 2 {
		t.Errorf("Embedded = %d, want 2", report.Embedded)
	}
}

func TestRunOnce_NoNotificationWhenClean(t *testing.T) {
	n := &recordingNotifier{}
	w := NewSyncWorker(&scriptedEmbedder{}, newStore(t, 2), Options{}, discardLogger())
	w.SetNotifier(n)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(n.reports) != 0 {
		t.Errorf("notifications = %d, want 0", len(n.reports))
	}
}

func TestRunOnce_NothingStale(t *testing.T) {
	s := newStore(t, 0)
	emb := &scriptedEmbedder{}
	w := NewSyncWorker(emb, s, Options{}, discardLogger())

	report, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Fetched != 0 || emb.calls.Load() != 0 {
		t.Errorf("report = %+v, embed calls = %d, want nothing done", report, emb.calls.Load())
	}
	if w.State() != StateIdle {
		t.Errorf("State() = %v, want idle", w.State())
	}
}

func TestRunOnce_FetchErrorReturned(t *testing.T) {
	s := newStore(t, 2)
	s.fetchErr = errors.New("connection refused")
	w := NewSyncWorker(&scriptedEmbedder{}, s, Options{}, discardLogger())

	if _, err := w.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error when the batch fetch fails")
	}
}

func TestRunOnce_RespectsBatchSize(t *testing.T) {
	s := newStore(t, 7)
	emb := &scriptedEmbedder{delay: 20 * time.Millisecond}
	w := NewSyncWorker(emb, s, Options{BatchSize: 3}, discardLogger())

	report, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Fetched != 3 {
		t.Errorf("Fetched = %d, want 3", report.Fetched)
	}
	if peak := emb.peak.Load(); peak > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak)
	}
}

func TestRunOnce_InFlightBatchSurvivesCancel(t *testing.T) {
	s := newStore(t, 4)
	emb := &scriptedEmbedder{delay: 100 * time.Millisecond}
	w := NewSyncWorker(emb, s, Options{BatchSize: 4}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan BatchReport, 1)
	go func() {
		report, _ := w.RunOnce(ctx)
		done <- report
	}()

	time.Sleep(30 * time.Millisecond)
	if w.State() != StateRunning {
		t.Errorf("State() = %v, want running", w.State())
	}
	cancel()

	select {
	case report := <-done:
		if report.Embedded != 4 {
			t.Errorf("Embedded = %d, want 4 (batch should finish after cancel)", report.Embedded)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RunOnce did not return")
	}
}

func TestRunOnce_CancelledBeforeStart(t *testing.T) {
	s := newStore(t, 2)
	w := NewSyncWorker(&scriptedEmbedder{}, s, Options{}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.RunOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if got := s.fetches.Load(); got != 0 {
		t.Errorf("fetches = %d, want 0", got)
	}
}

func TestDrain(t *testing.T) {
	s := newStore(t, 7)
	w := NewSyncWorker(&scriptedEmbedder{}, s, Options{BatchSize: 3}, discardLogger())

	report, err := w.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if report.Embedded != 7 {
		t.Errorf("Embedded = %d, want 7", report.Embedded)
	}
	if n, _ := s.CountEmbeddings(context.Background()); n != 7 {
		t.Errorf("CountEmbeddings = %d, want 7", n)
	}
}

func TestDrain_TriesEveryJobOnce(t *testing.T) {
	s := newStore(t, 3)
	emb := &scriptedEmbedder{failures: map[string]error{"Job": model.ErrUnavailable}}
	w := NewSyncWorker(emb, s, Options{BatchSize: 3}, discardLogger())

	report, err := w.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if report.Failed != 3 || report.Deferred != 3 {
		t.Errorf("report = %+v, want failed 3, deferred 3", report)
	}
	if got := emb.calls.Load(); got != 3 {
		t.Errorf("embed calls = %d, want 3 (each job tried once)", got)
	}
	if got := s.fetches.Load(); got != 2 {
		t.Errorf("fetches = %d, want 2", got)
	}
}

func TestDrain_EmbedsPastFailingJobs(t *testing.T) {
	s := newStore(t, 5)
	emb := &scriptedEmbedder{failures: map[string]error{
		"Job 1": model.ErrInvalidInput,
		"Job 2": model.ErrInvalidInput,
	}}
	w := NewSyncWorker(emb, s, Options{BatchSize: 2}, discardLogger())

	report, err := w.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if report.Embedded != 3 || report.Failed != 2 {
		t.Errorf("report = %+v, want embedded 3, failed 2", report)
	}
	if n, _ := s.CountEmbeddings(context.Background()); n != 3 {
		t.Errorf("CountEmbeddings = %d, want 3", n)
	}
}

func TestDrain_StopsWhenNothingSucceeds(t *testing.T) {
	s := newStore(t, 12)
	emb := &scriptedEmbedder{failures: map[string]error{"Job": model.ErrUnavailable}}
	w := NewSyncWorker(emb, s, Options{BatchSize: 3}, discardLogger())

	report, err := w.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if got := s.fetches.Load(); got != maxIdleDrainBatches {
		t.Errorf("fetches = %d, want %d", got, maxIdleDrainBatches)
	}
	if report.Failed != 3*maxIdleDrainBatches {
		t.Errorf("Failed = %d, want %d", report.Failed, 3*maxIdleDrainBatches)
	}
}

func TestRunOnce_FailingJobsDoNotStarveOthers(t *testing.T) {
	s := newStore(t, 3)
	emb := &scriptedEmbedder{failures: map[string]error{
		"Job 1": model.ErrInvalidInput,
		"Job 2": model.ErrInvalidInput,
	}}
	w := NewSyncWorker(emb, s, Options{BatchSize: 2}, discardLogger())

	for i := 0; i < 3; i++ {
		if _, err := w.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce #%d: %v", i+1, err)
		}
		if _, err := s.Embedding(context.Background(), 3); err == nil {
			return
		}
	}
	t.Error("job 3 was never embedded behind two failing jobs")
}

func TestRunOnce_RetriesAfterBackoff(t *testing.T) {
	s := newStore(t, 2)
	emb := &scriptedEmbedder{failures: map[string]error{"Job 1": model.ErrUnavailable}}
	w := NewSyncWorker(emb, s, Options{BatchSize: 2, FailureBackoff: time.Minute}, discardLogger())
	clock := time.Now()
	w.now = func() time.Time { return clock }

	first, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if first.Failed != 1 || first.Embedded != 1 {
		t.Fatalf("first = %+v, want embedded 1, failed 1", first)
	}

	held, _ := w.RunOnce(context.Background())
	if held.Fetched != 0 || held.Deferred != 1 {
		t.Errorf("inside backoff: report = %+v, want fetched 0, deferred 1", held)
	}

	clock = clock.Add(time.Minute)
	retried, _ := w.RunOnce(context.Background())
	if retried.Fetched != 1 || retried.Failed != 1 {
		t.Errorf("after backoff: report = %+v, want job 1 retried", retried)
	}

	// The second failure doubles the wait.
	clock = clock.Add(time.Minute)
	if r, _ := w.RunOnce(context.Background()); r.Deferred != 1 {
		t.Errorf("one minute after second failure: Deferred = %d, want 1", r.Deferred)
	}
	clock = clock.Add(time.Minute)
	if r, _ := w.RunOnce(context.Background()); r.Fetched != 1 {
		t.Errorf("two minutes after second failure: Fetched = %d, want 1", r.Fetched)
	}
}

func TestRunOnce_SuccessClearsBackoff(t *testing.T) {
	s := newStore(t, 1)
	emb := &scriptedEmbedder{failures: map[string]error{"Job 1": model.ErrUnavailable}}
	w := NewSyncWorker(emb, s, Options{FailureBackoff: time.Minute}, discardLogger())
	clock := time.Now()
	w.now = func() time.Time { return clock }

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	emb.failures = nil
	clock = clock.Add(time.Minute)
	if r, _ := w.RunOnce(context.Background()); r.Embedded != 1 {
		t.Fatalf("Embedded = %d, want 1", r.Embedded)
	}
	if n := len(w.deferredJobs(clock)); n != 0 {
		t.Errorf("deferred after success = %d, want 0", n)
	}
	if _, ok := w.failing[1]; ok {
		t.Error("job 1 still has backoff state after succeeding")
	}
}

func TestRun_CancelReturnsPromptly(t *testing.T) {
	w := NewSyncWorker(&scriptedEmbedder{}, newStore(t, 1), Options{Interval: time.Hour}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	if w.State() != StateSleeping {
		t.Errorf("State() = %v, want sleeping", w.State())
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error on cancel, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not return within 2s after cancel")
	}
	if w.State() != StateIdle {
		t.Errorf("State() = %v, want idle", w.State())
	}
}

func TestRun_BatchesPerInterval(t *testing.T) {
	s := newStore(t, 1)
	w := NewSyncWorker(&scriptedEmbedder{}, s, Options{Interval: 50 * time.Millisecond}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx)
	}()

	// Allow time for at least two passes (batch → sleep interval → batch).
	time.Sleep(130 * time.Millisecond)
	cancel()
	<-done

	if got := s.fetches.Load(); got < 2 {
		t.Errorf("fetches = %d, want >= 2", got)
	}
}

func TestRun_FetchErrorUsesRetryInterval(t *testing.T) {
	s := newStore(t, 1)
	s.fetchErr = errors.New("db down")
	w := NewSyncWorker(&scriptedEmbedder{}, s, Options{
		Interval:      time.Hour,
		RetryInterval: 30 * time.Millisecond,
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := s.fetches.Load(); got < 2 {
		t.Errorf("fetches = %d, want >= 2 (retry interval should apply)", got)
	}
}

func TestJobText(t *testing.T) {
	tests := []struct {
		name string
		job  model.JobPosting
		want string
	}{
		{
			name: "all fields",
			job: model.JobPosting{
				Title: "Audit Manager", Service: "Audit", Seniority: "Manager",
				Description: "Lead audits.", Industry: "Banking",
			},
			want: "Title: Audit Manager | Service: Audit | Level: Manager | Description: Lead audits. | Industry: Banking",
		},
		{
			name: "empty segments skipped",
			job:  model.JobPosting{Title: "Tax Senior", Industry: " "},
			want: "Title: Tax Senior",
		},
		{
			name: "nothing to embed",
			job:  model.JobPosting{Location: "Boston"},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JobText(tt.job); got != tt.want {
				t.Errorf("JobText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{StateIdle: "idle", StateRunning: "running", StateSleeping: "sleeping"} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
