package store

import (
	"context"
	"time"

	"github.com/amishk599/jobmatch/internal/model"
)

// ReadOnly wraps a store for dry-run mode. Reads pass through; embedding
// upserts and search history writes are dropped.
type ReadOnly struct {
	model.Store
}

func NewReadOnly(inner model.Store) *ReadOnly { return &ReadOnly{Store: inner} }

func (s *ReadOnly) UpsertEmbedding(context.Context, int64, []float32, time.Time) error { return nil }
func (s *ReadOnly) RecordSearch(context.Context, model.SearchRecord, []model.MatchRecord) error {
	return nil
}
