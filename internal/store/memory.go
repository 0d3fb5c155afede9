package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/amishk599/jobmatch/internal/model"
)

// MemoryStore is an in-process store for development and testing.
type MemoryStore struct {
	mu         sync.RWMutex
	dimension  int
	jobs       map[int64]model.JobPosting
	embeddings map[int64]model.JobEmbedding
	searches   []model.SearchRecord
	matches    []model.MatchRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension:  dimension,
		jobs:       make(map[int64]model.JobPosting),
		embeddings: make(map[int64]model.JobEmbedding),
	}
}

// AddJob inserts or replaces a catalog row.
func (s *MemoryStore) AddJob(_ context.Context, job model.JobPosting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// DeleteJob removes a job and its embedding.
func (s *MemoryStore) DeleteJob(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	delete(s.embeddings, id)
	return nil
}

func (s *MemoryStore) sortedJobIDs() []int64 {
	ids := make([]int64, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *MemoryStore) StaleJobs(_ context.Context, maxAge time.Duration, limit int) ([]model.JobPosting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-maxAge)
	var stale []model.JobPosting
	for _, id := range s.sortedJobIDs() {
		if len(stale) >= limit {
			break
		}
		emb, ok := s.embeddings[id]
		if !ok || emb.UpdatedAt.Before(cutoff) || len(emb.Vector) != s.dimension {
			stale = append(stale, s.jobs[id])
		}
	}
	return stale, nil
}

func (s *MemoryStore) UpsertEmbedding(_ context.Context, jobID int64, vector []float32, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return fmt.Errorf("upserting embedding for job %d: %w", jobID, ErrNotFound)
	}
	if cur, ok := s.embeddings[jobID]; ok && at.Before(cur.UpdatedAt) && len(cur.Vector) == len(vector) {
		return nil
	}
	s.embeddings[jobID] = model.JobEmbedding{
		JobID:     jobID,
		Vector:    append([]float32(nil), vector...),
		UpdatedAt: at,
	}
	return nil
}

// Embedding returns the stored embedding for jobID.
func (s *MemoryStore) Embedding(_ context.Context, jobID int64) (model.JobEmbedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	emb, ok := s.embeddings[jobID]
	if !ok {
		return emb, fmt.Errorf("embedding for job %d: %w", jobID, ErrNotFound)
	}
	return emb, nil
}

func (s *MemoryStore) CountEmbeddings(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.embeddings), nil
}

func (s *MemoryStore) GetJob(_ context.Context, id int64) (model.JobPosting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return job, fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	return job, nil
}

func (s *MemoryStore) Candidates(_ context.Context) ([]model.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Candidate
	for _, id := range s.sortedJobIDs() {
		if emb, ok := s.embeddings[id]; ok {
			out = append(out, model.Candidate{Job: s.jobs[id], Vector: emb.Vector})
		}
	}
	return out, nil
}

func (s *MemoryStore) RecordSearch(_ context.Context, search model.SearchRecord, matches []model.MatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches = append(s.searches, search)
	s.matches = append(s.matches, matches...)
	return nil
}

func (s *MemoryStore) RecentMatches(_ context.Context, userID string, limit int) ([]model.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Match
	for i := len(s.matches) - 1; i >= 0 && len(out) < limit; i-- {
		m := s.matches[i]
		if m.UserID != userID {
			continue
		}
		job, ok := s.jobs[m.JobID]
		if !ok {
			continue
		}
		out = append(out, model.Match{Job: job, Score: m.Score})
	}
	return out, nil
}

// Searches returns a copy of the recorded searches.
func (s *MemoryStore) Searches() []model.SearchRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.SearchRecord(nil), s.searches...)
}

// Matches returns a copy of the recorded matches.
func (s *MemoryStore) Matches() []model.MatchRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.MatchRecord(nil), s.matches...)
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
