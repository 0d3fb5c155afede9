package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amishk599/jobmatch/internal/model"
)

// ErrNotFound is returned when a job or embedding does not exist.
var ErrNotFound = errors.New("not found")

const defaultTimeout = 10 * time.Second

// Backend is a store that can be closed. AddJob writes catalog rows, which
// the catalog owner normally does; the CLI uses it for imports.
type Backend interface {
	model.Store
	AddJob(ctx context.Context, job model.JobPosting) error
	Close() error
}

// Open picks a backend from the DSN: postgres:// or postgresql:// URLs use
// PostgreSQL with pgvector, "memory" keeps everything in process, and anything
// else is treated as a SQLite file path.
func Open(ctx context.Context, dsn string, dimension int, timeout time.Duration) (Backend, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return NewPostgresStore(ctx, dsn, dimension, timeout)
	case dsn == "memory":
		return NewMemoryStore(dimension), nil
	case dsn == "":
		return nil, fmt.Errorf("database.dsn is empty")
	default:
		return NewSQLiteStore(strings.TrimPrefix(dsn, "sqlite://"), dimension, timeout)
	}
}
