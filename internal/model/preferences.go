package model

import (
	"time"

	"github.com/google/uuid"
)

// SearchType classifies how a query should be treated downstream.
type SearchType string

const (
	SearchJobTitle    SearchType = "job_title"
	SearchSpecialized SearchType = "specialized"
	SearchGeneral     SearchType = "general"
)

// Valid reports whether t is one of the known search types.
func (t SearchType) Valid() bool {
	switch t {
	case SearchJobTitle, SearchSpecialized, SearchGeneral:
		return true
	}
	return false
}

// Field names a standardizable preference.
type Field string

const (
	FieldRole       Field = "role"
	FieldLocation   Field = "location"
	FieldExperience Field = "experience"
)

// ExtractedPreferences is the structured form of a free-text job request.
// All five keys are always serialized; absent values encode as null.
type ExtractedPreferences struct {
	Role       *string    `json:"role"`
	Location   *string    `json:"location"`
	Experience *string    `json:"experience"`
	Salary     *string    `json:"salary"`
	SearchType SearchType `json:"search_type"`
}

// Value returns the preference for f, or nil when absent.
func (p ExtractedPreferences) Value(f Field) *string {
	switch f {
	case FieldRole:
		return p.Role
	case FieldLocation:
		return p.Location
	case FieldExperience:
		return p.Experience
	}
	return nil
}

// StandardizedTerm is the canonical form of one preference plus the
// spellings to search for. Variations always contains Standardized.
type StandardizedTerm struct {
	Standardized string   `json:"standardized"`
	Variations   []string `json:"search_variations"`
}

// SearchRecord is one executed search. Append-only.
type SearchRecord struct {
	ID          uuid.UUID
	UserID      string
	Query       string
	Preferences []byte // JSON-encoded ExtractedPreferences, nil when unknown
	CreatedAt   time.Time
}

// MatchRecord links a search to one returned posting. Append-only.
type MatchRecord struct {
	SearchID  uuid.UUID
	UserID    string
	JobID     int64
	Score     float64
	CreatedAt time.Time
}

// StrPtr returns a pointer to s.
func StrPtr(s string) *string {
	return &s
}
