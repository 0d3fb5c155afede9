package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amishk599/jobmatch/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// PostgresStore keeps job embeddings in a pgvector column next to the job
// catalog in PostgreSQL.
type PostgresStore struct {
	pool      *pgxpool.Pool
	dimension int
	timeout   time.Duration
}

// NewPostgresStore connects to dsn, installs the vector extension if needed,
// and ensures the tables exist.
func NewPostgresStore(ctx context.Context, dsn string, dimension int, timeout time.Duration) (*PostgresStore, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The extension must exist before connections can register its types.
	conn, err := pgx.Connect(connectCtx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	_, err = conn.Exec(connectCtx, "CREATE EXTENSION IF NOT EXISTS vector")
	conn.Close(connectCtx)
	if err != nil {
		return nil, fmt.Errorf("creating vector extension: %w", err)
	}

	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	pcfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(connectCtx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, dimension: dimension, timeout: timeout}
	if err := s.migrate(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id           BIGINT PRIMARY KEY,
			title        TEXT NOT NULL DEFAULT '',
			seniority    TEXT NOT NULL DEFAULT '',
			service      TEXT NOT NULL DEFAULT '',
			industry     TEXT NOT NULL DEFAULT '',
			location     TEXT NOT NULL DEFAULT '',
			employment   TEXT NOT NULL DEFAULT '',
			salary       TEXT NOT NULL DEFAULT '',
			description  TEXT NOT NULL DEFAULT '',
			link         TEXT NOT NULL DEFAULT '',
			published_at TIMESTAMPTZ
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS job_embeddings (
			job_id     BIGINT PRIMARY KEY REFERENCES jobs(id) ON DELETE CASCADE,
			embedding  vector(%d) NOT NULL,
			dimension  INTEGER NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`, s.dimension),
		`CREATE INDEX IF NOT EXISTS idx_job_embeddings_embedding ON job_embeddings USING hnsw (embedding vector_cosine_ops)`,
		`CREATE TABLE IF NOT EXISTS user_searches (
			id          UUID PRIMARY KEY,
			user_id     TEXT NOT NULL,
			query       TEXT NOT NULL,
			preferences JSONB,
			created_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS job_matches (
			id         BIGSERIAL PRIMARY KEY,
			search_id  UUID NOT NULL REFERENCES user_searches(id) ON DELETE CASCADE,
			user_id    TEXT NOT NULL,
			job_id     BIGINT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			score      DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_job_matches_user ON job_matches (user_id, created_at DESC)`,
	}

	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}
	return nil
}

const pgJobColumns = `j.id, j.title, j.seniority, j.service, j.industry, j.location,
	j.employment, j.salary, j.description, j.link, j.published_at`

func scanPgJob(row pgx.Row, extra ...any) (model.JobPosting, error) {
	var job model.JobPosting
	var published *time.Time
	dest := append([]any{
		&job.ID, &job.Title, &job.Seniority, &job.Service, &job.Industry, &job.Location,
		&job.Employment, &job.Salary, &job.Description, &job.Link, &published,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return job, err
	}
	if published != nil {
		job.PublishedAt = published.UTC()
	}
	return job, nil
}

// AddJob inserts or replaces a catalog row.
func (s *PostgresStore) AddJob(ctx context.Context, job model.JobPosting) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var published *time.Time
	if !job.PublishedAt.IsZero() {
		published = &job.PublishedAt
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, title, seniority, service, industry, location,
			employment, salary, description, link, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, seniority = EXCLUDED.seniority,
			service = EXCLUDED.service, industry = EXCLUDED.industry,
			location = EXCLUDED.location, employment = EXCLUDED.employment,
			salary = EXCLUDED.salary, description = EXCLUDED.description,
			link = EXCLUDED.link, published_at = EXCLUDED.published_at`,
		job.ID, job.Title, job.Seniority, job.Service, job.Industry, job.Location,
		job.Employment, job.Salary, job.Description, job.Link, published)
	if err != nil {
		return fmt.Errorf("adding job %d: %w", job.ID, err)
	}
	return nil
}

func (s *PostgresStore) StaleJobs(ctx context.Context, maxAge time.Duration, limit int) ([]model.JobPosting, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+pgJobColumns+`
		FROM jobs j
		LEFT JOIN job_embeddings e ON e.job_id = j.id
		WHERE e.job_id IS NULL OR e.updated_at < $1 OR e.dimension <> $2
		ORDER BY j.id
		LIMIT $3`, time.Now().Add(-maxAge), s.dimension, limit)
	if err != nil {
		return nil, fmt.Errorf("querying stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.JobPosting
	for rows.Next() {
		job, err := scanPgJob(rows)
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

func (s *PostgresStore) UpsertEmbedding(ctx context.Context, jobID int64, vector []float32, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_embeddings (job_id, embedding, dimension, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			dimension = EXCLUDED.dimension,
			updated_at = EXCLUDED.updated_at
		WHERE EXCLUDED.updated_at >= job_embeddings.updated_at
			OR EXCLUDED.dimension <> job_embeddings.dimension`,
		jobID, pgvector.NewVector(vector), len(vector), at)
	if err != nil {
		return fmt.Errorf("upserting embedding for job %d: %w", jobID, err)
	}
	return nil
}

func (s *PostgresStore) CountEmbeddings(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var count int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM job_embeddings").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting embeddings: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id int64) (model.JobPosting, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	job, err := scanPgJob(s.pool.QueryRow(ctx, "SELECT "+pgJobColumns+" FROM jobs j WHERE j.id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return job, fmt.Errorf("job %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return job, fmt.Errorf("reading job %d: %w", id, err)
	}
	return job, nil
}

func (s *PostgresStore) Candidates(ctx context.Context) ([]model.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+pgJobColumns+`, e.embedding
		FROM jobs j
		JOIN job_embeddings e ON e.job_id = j.id
		ORDER BY j.id`)
	if err != nil {
		return nil, fmt.Errorf("querying candidates: %w", err)
	}
	defer rows.Close()

	var candidates []model.Candidate
	for rows.Next() {
		var vec pgvector.Vector
		job, err := scanPgJob(rows, &vec)
		if err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		candidates = append(candidates, model.Candidate{Job: job, Vector: vec.Slice()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating candidates: %w", err)
	}
	return candidates, nil
}

func (s *PostgresStore) RecordSearch(ctx context.Context, search model.SearchRecord, matches []model.MatchRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning search record: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		"INSERT INTO user_searches (id, user_id, query, preferences, created_at) VALUES ($1, $2, $3, $4, $5)",
		search.ID, search.UserID, search.Query, search.Preferences, search.CreatedAt); err != nil {
		return fmt.Errorf("inserting search %s: %w", search.ID, err)
	}

	batch := &pgx.Batch{}
	for _, m := range matches {
		batch.Queue("INSERT INTO job_matches (search_id, user_id, job_id, score, created_at) VALUES ($1, $2, $3, $4, $5)",
			m.SearchID, m.UserID, m.JobID, m.Score, m.CreatedAt)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting matches for search %s: %w", search.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing search record: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentMatches(ctx context.Context, userID string, limit int) ([]model.Match, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+pgJobColumns+`, m.score
		FROM job_matches m
		JOIN jobs j ON j.id = m.job_id
		WHERE m.user_id = $1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent matches for %s: %w", userID, err)
	}
	defer rows.Close()

	var matches []model.Match
	for rows.Next() {
		var score float64
		job, err := scanPgJob(rows, &score)
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

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
