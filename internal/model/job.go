package model

import (
	"context"
	"time"
)

// JobPosting is a row of the external job catalog. The matcher only reads it.
type JobPosting struct {
	ID          int64
	Title       string
	Seniority   string
	Service     string // service line, e.g. "Audit" or "Tax"
	Industry    string
	Location    string
	Employment  string
	Salary      string
	Description string
	Link        string
	PublishedAt time.Time // zero when the catalog has no publication date
}

// JobEmbedding is the stored vector for one posting. At most one exists per job.
type JobEmbedding struct {
	JobID     int64
	Vector    []float32
	UpdatedAt time.Time
}

// Candidate is a posting paired with its stored vector, as read for ranking.
type Candidate struct {
	Job    JobPosting
	Vector []float32
}

// Match is a ranked search result. Higher Score means more similar.
type Match struct {
	Job   JobPosting
	Score float64
}

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingStore is the persistence contract shared by the sync worker and
// the match engine.
type EmbeddingStore interface {
	// StaleJobs returns up to limit jobs whose embedding is missing, older
	// than maxAge, or of the wrong dimension, ordered by job ID.
	StaleJobs(ctx context.Context, maxAge time.Duration, limit int) ([]JobPosting, error)
	UpsertEmbedding(ctx context.Context, jobID int64, vector []float32, at time.Time) error
	CountEmbeddings(ctx context.Context) (int, error)
	GetJob(ctx context.Context, id int64) (JobPosting, error)
	// Candidates returns every job that has an embedding, in one read.
	Candidates(ctx context.Context) ([]Candidate, error)
}

// SearchLog persists search history.
type SearchLog interface {
	RecordSearch(ctx context.Context, search SearchRecord, matches []MatchRecord) error
	RecentMatches(ctx context.Context, userID string, limit int) ([]Match, error)
}

// Store is everything the engine needs from persistence.
type Store interface {
	EmbeddingStore
	SearchLog
}
