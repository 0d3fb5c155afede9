package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/amishk599/jobmatch/internal/model"
	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath, 3, time.Second)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func addJobs(t *testing.T, s *SQLiteStore, jobs ...model.JobPosting) {
	t.Helper()
	for _, j := range jobs {
		if err := s.AddJob(context.Background(), j); err != nil {
			t.Fatalf("AddJob(%d): %v", j.ID, err)
		}
	}
}

func staleIDs(t *testing.T, s *SQLiteStore, maxAge time.Duration, limit int) []int64 {
	t.Helper()
	jobs, err := s.StaleJobs(context.Background(), maxAge, limit)
	if err != nil {
		t.Fatalf("StaleJobs: %v", err)
	}
	var ids []int64
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	return ids
}

func TestStaleJobs_MissingEmbeddingsInIDOrder(t *testing.T) {
	s := newTestStore(t)
	addJobs(t, s, model.JobPosting{ID: 3}, model.JobPosting{ID: 1}, model.JobPosting{ID: 2})

	got := staleIDs(t, s, time.Hour, 2)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("StaleJobs = %v, want [1 2]", got)
	}
}

func TestStaleJobs_FreshOldAndWrongDimension(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addJobs(t, s, model.JobPosting{ID: 1}, model.JobPosting{ID: 2}, model.JobPosting{ID: 3})

	now := time.Now()
	if err := s.UpsertEmbedding(ctx, 1, []float32{1, 0, 0}, now); err != nil {
		t.Fatalf("upsert fresh: %v", err)
	}
	if err := s.UpsertEmbedding(ctx, 2, []float32{1, 0, 0}, now.Add(-8*24*time.Hour)); err != nil {
		t.Fatalf("upsert old: %v", err)
	}
	if err := s.UpsertEmbedding(ctx, 3, []float32{1, 0}, now); err != nil {
		t.Fatalf("upsert wrong dimension: %v", err)
	}

	got := staleIDs(t, s, 7*24*time.Hour, 10)
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("StaleJobs = %v, want [2 3]", got)
	}
}

func TestUpsertEmbedding_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addJobs(t, s, model.JobPosting{ID: 7})

	at := time.Now()
	for i := 0; i < 2; i++ {
		if err := s.UpsertEmbedding(ctx, 7, []float32{0.1, 0.2, 0.3}, at); err != nil {
			t.Fatalf("upsert #%d: %v", i, err)
		}
	}

	count, err := s.CountEmbeddings(ctx)
	if err != nil {
		t.Fatalf("CountEmbeddings: %v", err)
	}
	if count != 1 {
		t.Errorf("CountEmbeddings = %d, want 1", count)
	}
}

func TestUpsertEmbedding_IgnoresOlderWrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addJobs(t, s, model.JobPosting{ID: 7})

	now := time.Now()
	if err := s.UpsertEmbedding(ctx, 7, []float32{1, 0, 0}, now); err != nil {
		t.Fatalf("upsert new: %v", err)
	}
	if err := s.UpsertEmbedding(ctx, 7, []float32{0, 1, 0}, now.Add(-time.Hour)); err != nil {
		t.Fatalf("upsert old: %v", err)
	}

	emb, err := s.Embedding(ctx, 7)
	if err != nil {
		t.Fatalf("Embedding: %v", err)
	}
	if emb.Vector[0] != 1 {
		t.Errorf("vector = %v, want the newer [1 0 0]", emb.Vector)
	}
}

func TestUpsertEmbedding_UnknownJobFails(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpsertEmbedding(context.Background(), 99, []float32{1, 0, 0}, time.Now()); err == nil {
		t.Fatal("expected foreign key error for unknown job")
	}
}

func TestDeleteJob_CascadesEmbedding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addJobs(t, s, model.JobPosting{ID: 1})
	if err := s.UpsertEmbedding(ctx, 1, []float32{1, 0, 0}, time.Now()); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := s.DeleteJob(ctx, 1); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}

	count, err := s.CountEmbeddings(ctx)
	if err != nil {
		t.Fatalf("CountEmbeddings: %v", err)
	}
	if count != 0 {
		t.Errorf("CountEmbeddings = %d, want 0 after cascade", count)
	}
}

func TestGetJob(t *testing.T) {
	s := newTestStore(t)
	published := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	addJobs(t, s, model.JobPosting{ID: 5, Title: "Audit Manager", Location: "New York, NY", PublishedAt: published})

	job, err := s.GetJob(context.Background(), 5)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Title != "Audit Manager" || !job.PublishedAt.Equal(published) {
		t.Errorf("GetJob = %+v", job)
	}

	if _, err := s.GetJob(context.Background(), 6); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetJob(missing) err = %v, want ErrNotFound", err)
	}
}

func TestCandidates_ReturnsOnlyEmbeddedJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addJobs(t, s, model.JobPosting{ID: 1, Title: "A"}, model.JobPosting{ID: 2, Title: "B"})
	if err := s.UpsertEmbedding(ctx, 2, []float32{0.5, 0.25, 0}, time.Now()); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.Candidates(ctx)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(got) != 1 || got[0].Job.ID != 2 || got[0].Job.Title != "B" {
		t.Fatalf("Candidates = %+v", got)
	}
	if len(got[0].Vector) != 3 || got[0].Vector[1] != 0.25 {
		t.Errorf("Vector = %v", got[0].Vector)
	}
}

func TestRecordSearchAndRecentMatches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addJobs(t, s, model.JobPosting{ID: 1, Title: "First"}, model.JobPosting{ID: 2, Title: "Second"})

	record := func(jobID int64, at time.Time) {
		t.Helper()
		id := uuid.New()
		err := s.RecordSearch(ctx,
			model.SearchRecord{ID: id, UserID: "u1", Query: "audit", Preferences: []byte(`{"role":"audit"}`), CreatedAt: at},
			[]model.MatchRecord{{SearchID: id, UserID: "u1", JobID: jobID, Score: 0.9, CreatedAt: at}},
		)
		if err != nil {
			t.Fatalf("RecordSearch: %v", err)
		}
	}

	now := time.Now()
	record(1, now.Add(-time.Minute))
	record(2, now)

	got, err := s.RecentMatches(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("RecentMatches: %v", err)
	}
	if len(got) != 2 || got[0].Job.ID != 2 || got[1].Job.ID != 1 {
		t.Errorf("RecentMatches = %+v, want jobs [2 1]", got)
	}

	other, err := s.RecentMatches(ctx, "u2", 10)
	if err != nil {
		t.Fatalf("RecentMatches other user: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("RecentMatches(u2) = %+v, want none", other)
	}
}

func TestRecordSearch_EmptyMatches(t *testing.T) {
	s := newTestStore(t)
	err := s.RecordSearch(context.Background(),
		model.SearchRecord{ID: uuid.New(), UserID: "u1", Query: "nothing", CreatedAt: time.Now()}, nil)
	if err != nil {
		t.Fatalf("RecordSearch: %v", err)
	}

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM user_searches").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("user_searches rows = %d, want 1", n)
	}
}

func TestReadOnly_DropsWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	addJobs(t, s, model.JobPosting{ID: 1})

	ro := NewReadOnly(s)
	if err := ro.UpsertEmbedding(ctx, 1, []float32{1, 0, 0}, time.Now()); err != nil {
		t.Fatalf("UpsertEmbedding: %v", err)
	}
	if err := ro.RecordSearch(ctx, model.SearchRecord{ID: uuid.New(), UserID: "u"}, nil); err != nil {
		t.Fatalf("RecordSearch: %v", err)
	}

	count, err := ro.CountEmbeddings(ctx)
	if err != nil {
		t.Fatalf("CountEmbeddings: %v", err)
	}
	if count != 0 {
		t.Errorf("CountEmbeddings = %d, want 0", count)
	}
}

func TestOpen_PicksBackendByDSN(t *testing.T) {
	ctx := context.Background()

	mem, err := Open(ctx, "memory", 3, time.Second)
	if err != nil {
		t.Fatalf("Open(memory): %v", err)
	}
	if _, ok := mem.(*MemoryStore); !ok {
		t.Errorf("Open(memory) = %T, want *MemoryStore", mem)
	}

	lite, err := Open(ctx, filepath.Join(t.TempDir(), "x.db"), 3, time.Second)
	if err != nil {
		t.Fatalf("Open(sqlite): %v", err)
	}
	defer lite.Close()
	if _, ok := lite.(*SQLiteStore); !ok {
		t.Errorf("Open(path) = %T, want *SQLiteStore", lite)
	}

	if _, err := Open(ctx, "", 3, time.Second); err == nil {
		t.Error("Open(\"\") should fail")
	}
}
