package vector

import (
	"math"
	"sort"

	"github.com/amishk599/jobmatch/internal/model"
)

// CosineSimilarity returns the cosine of the angle between a and b, in [-1, 1].
// Vectors of different length, empty vectors and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Rank scores every candidate against query and returns them best first.
// Candidates whose vector length differs from the query are skipped, as are
// candidates scoring below a positive minScore.
// Ties are broken by publication date (newest first), then by job ID.
func Rank(query []float32, candidates []model.Candidate, minScore float64) []model.Match {
	matches := make([]model.Match, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Vector) != len(query) {
			continue
		}
		score := CosineSimilarity(query, c.Vector)
		if minScore > 0 && score < minScore {
			continue
		}
		matches = append(matches, model.Match{Job: c.Job, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Job.PublishedAt.Equal(b.Job.PublishedAt) {
			return a.Job.PublishedAt.After(b.Job.PublishedAt)
		}
		return a.Job.ID < b.Job.ID
	})

	return matches
}
