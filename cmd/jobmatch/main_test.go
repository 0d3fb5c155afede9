package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/amishk599/jobmatch/internal/model"
)

func TestImportedJob_ToPosting(t *testing.T) {
	tests := []struct {
		name      string
		published string
		want      time.Time
	}{
		{"no date", "", time.Time{}},
		{"date only", "2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"rfc3339", "2024-03-01T09:30:00Z", time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := importedJob{ID: 7, Title: "Tax Senior", PublishedAt: tt.published}.toPosting()
			if err != nil {
				t.Fatalf("toPosting: %v", err)
			}
			if p.ID != 7 || p.Title != "Tax Senior" {
				t.Errorf("posting = %+v", p)
			}
			if !p.PublishedAt.Equal(tt.want) {
				t.Errorf("PublishedAt = %v, want %v", p.PublishedAt, tt.want)
			}
		})
	}
}

func TestImportedJob_Invalid(t *testing.T) {
	if _, err := (importedJob{ID: 0, Title: "x"}).toPosting(); err == nil {
		t.Error("expected error for non-positive id")
	}
	if _, err := (importedJob{ID: 1, PublishedAt: "last week"}).toPosting(); err == nil {
		t.Error("expected error for unparseable published_at")
	}
}

func TestDSNKind(t *testing.T) {
	tests := map[string]string{
		"memory":                   "memory",
		"postgres://localhost/db":  "postgres",
		"postgresql://localhost/x": "postgres",
		"jobmatch.db":              "sqlite",
		"sqlite:///tmp/jobs.db":    "sqlite",
	}
	for dsn, want := range tests {
		if got := dsnKind(dsn); got != want {
			t.Errorf("dsnKind(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func TestExplainSearchError(t *testing.T) {
	err := explainSearchError(model.ErrSystemNotInitialized)
	if !errors.Is(err, model.ErrSystemNotInitialized) {
		t.Errorf("hint should keep the error class, got %v", err)
	}
	if !strings.Contains(err.Error(), "sync --all") {
		t.Errorf("err = %q, want a sync hint", err)
	}

	plain := errors.New("boom")
	if got := explainSearchError(plain); got != plain {
		t.Errorf("explainSearchError(other) = %v, want unchanged", got)
	}
}

func TestLoadConfig_EnvFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("search:\n  default_limit: 9\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JOBMATCH_CONFIG", path)

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Search.DefaultLimit != 9 {
		t.Errorf("DefaultLimit = %d, want 9 from JOBMATCH_CONFIG", cfg.Search.DefaultLimit)
	}
}
