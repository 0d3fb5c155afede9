package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amishk599/jobmatch/internal/model"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps job embeddings and search history in a SQLite database
// next to the job catalog.
type SQLiteStore struct {
	db        *sql.DB
	dimension int
	timeout   time.Duration
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id           INTEGER PRIMARY KEY,
		title        TEXT NOT NULL DEFAULT '',
		seniority    TEXT NOT NULL DEFAULT '',
		service      TEXT NOT NULL DEFAULT '',
		industry     TEXT NOT NULL DEFAULT '',
		location     TEXT NOT NULL DEFAULT '',
		employment   TEXT NOT NULL DEFAULT '',
		salary       TEXT NOT NULL DEFAULT '',
		description  TEXT NOT NULL DEFAULT '',
		link         TEXT NOT NULL DEFAULT '',
		published_at INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS job_embeddings (
		job_id     INTEGER PRIMARY KEY REFERENCES jobs(id) ON DELETE CASCADE,
		vector     TEXT NOT NULL,
		dimension  INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_searches (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		query       TEXT NOT NULL,
		preferences TEXT,
		created_at  INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS job_matches (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		search_id  TEXT NOT NULL REFERENCES user_searches(id) ON DELETE CASCADE,
		user_id    TEXT NOT NULL,
		job_id     INTEGER NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
		score      REAL NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_job_matches_user ON job_matches (user_id, created_at)`,
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the tables exist. dimension is the embedding length currently in use;
// stored vectors of any other length count as stale.
func NewSQLiteStore(dbPath string, dimension int, timeout time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One writer at a time; concurrent upserts queue inside database/sql.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &SQLiteStore{db: db, dimension: dimension, timeout: timeout}, nil
}

const jobColumns = `j.id, j.title, j.seniority, j.service, j.industry, j.location,
	j.employment, j.salary, j.description, j.link, j.published_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner, extra ...any) (model.JobPosting, error) {
	var job model.JobPosting
	var published int64
	dest := append([]any{
		&job.ID, &job.Title, &job.Seniority, &job.Service, &job.Industry, &job.Location,
		&job.Employment, &job.Salary, &job.Description, &job.Link, &published,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return job, err
	}
	if published > 0 {
		job.PublishedAt = time.UnixMilli(published).UTC()
	}
	return job, nil
}

// AddJob inserts or replaces a catalog row. The catalog is normally owned by
// the ingestion side; this exists for seeding and tests.
func (s *SQLiteStore) AddJob(ctx context.Context, job model.JobPosting) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var published int64
	if !job.PublishedAt.IsZero() {
		published = job.PublishedAt.UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, title, seniority, service, industry, location,
			employment, salary, description, link, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, seniority = excluded.seniority,
			service = excluded.service, industry = excluded.industry,
			location = excluded.location, employment = excluded.employment,
			salary = excluded.salary, description = excluded.description,
			link = excluded.link, published_at = excluded.published_at`,
		job.ID, job.Title, job.Seniority, job.Service, job.Industry, job.Location,
		job.Employment, job.Salary, job.Description, job.Link, published)
	if err != nil {
		return fmt.Errorf("adding job %d: %w", job.ID, err)
	}
	return nil
}

// DeleteJob removes a catalog row; its embedding goes with it.
func (s *SQLiteStore) DeleteJob(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting job %d: %w", id, err)
	}
	return nil
}

// StaleJobs returns up to limit jobs needing a (re)embedding, by ascending ID.
func (s *SQLiteStore) StaleJobs(ctx context.Context, maxAge time.Duration, limit int) ([]model.JobPosting, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cutoff := time.Now().Add(-maxAge).UnixMilli()
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs j
		LEFT JOIN job_embeddings e ON e.job_id = j.id
		WHERE e.job_id IS NULL OR e.updated_at < ? OR e.dimension != ?
		ORDER BY j.id
		LIMIT ?`, cutoff, s.dimension, limit)
	if err != nil {
		return nil, fmt.Errorf("querying stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.JobPosting
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning stale job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stale jobs: %w", err)
	}
	return jobs, nil
}

// UpsertEmbedding stores vector for jobID. A write older than the stored
// embedding of the same dimension is ignored.
func (s *SQLiteStore) UpsertEmbedding(ctx context.Context, jobID int64, vector []float32, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	encoded, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("encoding vector for job %d: %w", jobID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO job_embeddings (job_id, vector, dimension, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			updated_at = excluded.updated_at
		WHERE excluded.updated_at >= job_embeddings.updated_at
			OR excluded.dimension != job_embeddings.dimension`,
		jobID, string(encoded), len(vector), at.UnixMilli())
	if err != nil {
		return fmt.Errorf("upserting embedding for job %d: %w", jobID, err)
	}
	return nil
}

// Embedding returns the stored embedding for jobID.
func (s *SQLiteStore) Embedding(ctx context.Context, jobID int64) (model.JobEmbedding, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var raw string
	var updated int64
	err := s.db.QueryRowContext(ctx,
		"SELECT vector, updated_at FROM job_embeddings WHERE job_id = ?", jobID).Scan(&raw, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.JobEmbedding{}, fmt.Errorf("embedding for job %d: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return model.JobEmbedding{}, fmt.Errorf("reading embedding for job %d: %w", jobID, err)
	}

	emb := model.JobEmbedding{JobID: jobID, UpdatedAt: time.UnixMilli(updated).UTC()}
	if err := json.Unmarshal([]byte(raw), &emb.Vector); err != nil {
		return model.JobEmbedding{}, fmt.Errorf("decoding vector for job %d: %w", jobID, err)
	}
	return emb, nil
}

// CountEmbeddings returns the number of stored embeddings.
func (s *SQLiteStore) CountEmbeddings(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM job_embeddings").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting embeddings: %w", err)
	}
	return count, nil
}

// GetJob returns the catalog row for id, or ErrNotFound.
func (s *SQLiteStore) GetJob(ctx context.Context, id int64) (model.JobPosting, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs j WHERE j.id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return job, fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return job, fmt.Errorf("reading job %d: %w", id, err)
	}
	return job, nil
}

// Candidates returns every embedded job with its vector.
func (s *SQLiteStore) Candidates(ctx context.Context) ([]model.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+`, e.vector
		FROM jobs j
		JOIN job_embeddings e ON e.job_id = j.id
		ORDER BY j.id`)
	if err != nil {
		return nil, fmt.Errorf("querying candidates: %w", err)
	}
	defer rows.Close()

	var candidates []model.Candidate
	for rows.Next() {
		var raw string
		job, err := scanJob(rows, &raw)
		if err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		c := model.Candidate{Job: job}
		if err := json.Unmarshal([]byte(raw), &c.Vector); err != nil {
			return nil, fmt.Errorf("decoding vector for job %d: %w", job.ID, err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating candidates: %w", err)
	}
	return candidates, nil
}

// RecordSearch appends a search and its matches in one transaction.
func (s *SQLiteStore) RecordSearch(ctx context.Context, search model.SearchRecord, matches []model.MatchRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning search record: %w", err)
	}
	defer tx.Rollback()

	var prefs any
	if search.Preferences != nil {
		prefs = string(search.Preferences)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO user_searches (id, user_id, query, preferences, created_at) VALUES (?, ?, ?, ?, ?)",
		search.ID.String(), search.UserID, search.Query, prefs, search.CreatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("inserting search %s: %w", search.ID, err)
	}

	for _, m := range matches {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO job_matches (search_id, user_id, job_id, score, created_at) VALUES (?, ?, ?, ?, ?)",
			m.SearchID.String(), m.UserID, m.JobID, m.Score, m.CreatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("inserting match for job %d: %w", m.JobID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing search record: %w", err)
	}
	return nil
}

// RecentMatches returns the user's latest matches, newest first.
func (s *SQLiteStore) RecentMatches(ctx context.Context, userID string, limit int) ([]model.Match, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+`, m.score
		FROM job_matches m
		JOIN jobs j ON j.id = m.job_id
		WHERE m.user_id = ?
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent matches for %s: %w", userID, err)
	}
	defer rows.Close()

	var matches []model.Match
	for rows.Next() {
		var score float64
		job, err := scanJob(rows, &score)
		if err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, model.Match{Job: job, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating matches: %w", err)
	}
	return matches, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
