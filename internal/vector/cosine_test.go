package vector

import (
	"math"
	"testing"
	"time"

	"github.com/amishk599/jobmatch/internal/model"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "scaled", a: []float32{1, 1}, b: []float32{3, 3}, want: 1},
		{name: "length mismatch", a: []float32{1, 0}, b: []float32{1, 0, 0}, want: 0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, want: 0},
		{name: "empty", a: nil, b: nil, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func candidate(id int64, published time.Time, v ...float32) model.Candidate {
	return model.Candidate{Job: model.JobPosting{ID: id, PublishedAt: published}, Vector: v}
}

func TestRank_OrdersByScoreThenRecency(t *testing.T) {
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := old.Add(48 * time.Hour)

	got := Rank([]float32{1, 0}, []model.Candidate{
		candidate(1, recent, 0, 1),
		candidate(2, old, 1, 0),
		candidate(3, recent, 2, 0),
		candidate(4, old, 1, 1),
	}, 0)

	wantIDs := []int64{3, 2, 4, 1}
	if len(got) != len(wantIDs) {
		t.Fatalf("got %d matches, want %d", len(got), len(wantIDs))
	}
	for i, id := range wantIDs {
		if got[i].Job.ID != id {
			t.Errorf("match[%d].ID = %d, want %d", i, got[i].Job.ID, id)
		}
	}
}

func TestRank_SkipsDimensionMismatch(t *testing.T) {
	got := Rank([]float32{1, 0}, []model.Candidate{
		candidate(1, time.Time{}, 1, 0, 0),
		candidate(2, time.Time{}, 1, 0),
	}, 0)
	if len(got) != 1 || got[0].Job.ID != 2 {
		t.Fatalf("Rank() = %+v, want only job 2", got)
	}
}

func TestRank_MinScore(t *testing.T) {
	got := Rank([]float32{1, 0}, []model.Candidate{
		candidate(1, time.Time{}, 1, 0),
		candidate(2, time.Time{}, 0, 1),
	}, 0.7)
	if len(got) != 1 || got[0].Job.ID != 1 {
		t.Fatalf("Rank() = %+v, want only job 1", got)
	}
}
