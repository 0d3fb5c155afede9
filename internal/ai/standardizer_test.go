package ai

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/amishk599/jobmatch/internal/model"
)

func newStandardizer(p LLMProvider) *TermStandardizer {
	return NewTermStandardizer(p, StandardizeTemplate, time.Second, discardLogger())
}

func TestStandardize_NoFieldsSkipsModel(t *testing.T) {
	mock := &mockProvider{response: `{}`}
	prefs := model.ExtractedPreferences{Salary: model.StrPtr("$100k"), SearchType: model.SearchGeneral}

	got := newStandardizer(mock).Standardize(context.Background(), prefs)
	if len(got) != 0 {
		t.Errorf("expected empty map, got %v", got)
	}
	if mock.calls != 0 {
		t.Errorf("provider calls = %d, want 0", mock.calls)
	}
}

func TestStandardize_ModelReply(t *testing.T) {
	mock := &mockProvider{response: `{
		"role": {"standardized": "Audit Manager", "search_variations": ["audit manager", "Audit Manager", " manager, audit ", ""]},
		"location": {"standardized": "new york", "search_variations": ["NYC", "New York City", "Manhattan"]}
	}`}
	prefs := model.ExtractedPreferences{
		Role:       model.StrPtr("audit manager"),
		Location:   model.StrPtr("new york"),
		SearchType: model.SearchJobTitle,
	}

	got := newStandardizer(mock).Standardize(context.Background(), prefs)

	if len(got) != 2 {
		t.Fatalf("got %d terms, want 2: %v", len(got), got)
	}
	role := got[model.FieldRole]
	if role.Standardized != "audit manager" {
		t.Errorf("role.Standardized = %q, want audit manager", role.Standardized)
	}
	if want := []string{"audit manager", "manager, audit"}; !reflect.DeepEqual(role.Variations, want) {
		t.Errorf("role.Variations = %v, want %v", role.Variations, want)
	}

	loc := got[model.FieldLocation]
	if want := []string{"NYC", "New York City", "Manhattan", "new york"}; !reflect.DeepEqual(loc.Variations, want) {
		t.Errorf("location.Variations = %v, want %v", loc.Variations, want)
	}

	if !strings.Contains(mock.lastReq.Prompt, "role: audit manager") {
		t.Errorf("prompt should list the role, got %q", mock.lastReq.Prompt)
	}
	props := mock.lastReq.Schema["properties"].(map[string]any)
	if _, ok := props["experience"]; ok {
		t.Error("schema should only request present fields")
	}
}

func TestStandardize_PerFieldFallback(t *testing.T) {
	mock := &mockProvider{response: `{
		"role": {"standardized": "tax manager", "search_variations": ["tax manager", "manager tax"]},
		"location": {"standardized": "", "search_variations": ["x"]},
		"experience": {"standardized": "senior", "search_variations": "senior"}
	}`}
	prefs := model.ExtractedPreferences{
		Role:       model.StrPtr("tax manager"),
		Location:   model.StrPtr("Chicago"),
		Experience: model.StrPtr("Senior"),
		SearchType: model.SearchJobTitle,
	}

	got := newStandardizer(mock).Standardize(context.Background(), prefs)

	if got[model.FieldRole].Standardized != "tax manager" || len(got[model.FieldRole].Variations) != 2 {
		t.Errorf("role = %+v, want model answer", got[model.FieldRole])
	}
	if want := (model.StandardizedTerm{Standardized: "chicago", Variations: []string{"chicago"}}); !reflect.DeepEqual(got[model.FieldLocation], want) {
		t.Errorf("location = %+v, want %+v", got[model.FieldLocation], want)
	}
	if want := (model.StandardizedTerm{Standardized: "senior", Variations: []string{"senior"}}); !reflect.DeepEqual(got[model.FieldExperience], want) {
		t.Errorf("experience = %+v, want %+v", got[model.FieldExperience], want)
	}
}

func TestStandardize_MissingFieldAndEmptyVariations(t *testing.T) {
	mock := &mockProvider{response: `{"role": {"standardized": "audit", "search_variations": []}}`}
	prefs := model.ExtractedPreferences{
		Role:       model.StrPtr("Audit"),
		Location:   model.StrPtr("Boston"),
		SearchType: model.SearchJobTitle,
	}

	got := newStandardizer(mock).Standardize(context.Background(), prefs)

	if want := (model.StandardizedTerm{Standardized: "audit", Variations: []string{"audit"}}); !reflect.DeepEqual(got[model.FieldRole], want) {
		t.Errorf("role = %+v, want %+v", got[model.FieldRole], want)
	}
	if want := (model.StandardizedTerm{Standardized: "boston", Variations: []string{"boston"}}); !reflect.DeepEqual(got[model.FieldLocation], want) {
		t.Errorf("location = %+v, want %+v", got[model.FieldLocation], want)
	}
}

func TestStandardize_ProviderFailure(t *testing.T) {
	for _, mock := range []*mockProvider{
		{err: errors.New("connection refused")},
		{err: ErrDisabled},
		{response: "not json"},
	} {
		prefs := model.ExtractedPreferences{
			Role:       model.StrPtr("  IT Audit "),
			SearchType: model.SearchSpecialized,
		}
		got := newStandardizer(mock).Standardize(context.Background(), prefs)

		want := model.StandardizedTerm{Standardized: "it audit", Variations: []string{"it audit"}}
		if !reflect.DeepEqual(got[model.FieldRole], want) {
			t.Errorf("role = %+v, want %+v", got[model.FieldRole], want)
		}
		if len(got) != 1 {
			t.Errorf("got %d terms, want 1", len(got))
		}
	}
}

func TestStandardize_StandardizedAlwaysInVariations(t *testing.T) {
	replies := []string{
		`{"role": {"standardized": "Audit Senior", "search_variations": ["senior auditor"]}}`,
		`{"role": {"standardized": "audit senior", "search_variations": ["AUDIT SENIOR"]}}`,
		"garbage",
	}
	for _, reply := range replies {
		prefs := model.ExtractedPreferences{Role: model.StrPtr("audit senior"), SearchType: model.SearchJobTitle}
		term := newStandardizer(&mockProvider{response: reply}).Standardize(context.Background(), prefs)[model.FieldRole]

		found := false
		for _, v := range term.Variations {
			if strings.EqualFold(v, term.Standardized) {
				found = true
			}
		}
		if !found {
			t.Errorf("reply %q: standardized %q missing from %v", reply, term.Standardized, term.Variations)
		}
	}
}
