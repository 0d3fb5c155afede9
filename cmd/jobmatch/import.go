package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobmatch/internal/model"
)

var importCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Load postings into the catalog",
	Long:  "Reads a JSON array of postings and writes them to the catalog. Existing rows with the same id are replaced. Run `jobmatch sync` afterwards to embed them.",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

// importedJob is the on-disk shape of a posting.
type importedJob struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Seniority   string `json:"seniority"`
	Service     string `json:"service"`
	Industry    string `json:"industry"`
	Location    string `json:"location"`
	Employment  string `json:"employment"`
	Salary      string `json:"salary"`
	Description string `json:"description"`
	Link        string `json:"link"`
	PublishedAt string `json:"published_at"` // RFC 3339 or YYYY-MM-DD, optional
}

func (j importedJob) toPosting() (model.JobPosting, error) {
	if j.ID <= 0 {
		return model.JobPosting{}, fmt.Errorf("posting %q: id must be positive", j.Title)
	}
	p := model.JobPosting{
		ID:          j.ID,
		Title:       j.Title,
		Seniority:   j.Seniority,
		Service:     j.Service,
		Industry:    j.Industry,
		Location:    j.Location,
		Employment:  j.Employment,
		Salary:      j.Salary,
		Description: j.Description,
		Link:        j.Link,
	}
	if j.PublishedAt != "" {
		t, err := time.Parse(time.RFC3339, j.PublishedAt)
		if err != nil {
			t, err = time.Parse(time.DateOnly, j.PublishedAt)
		}
		if err != nil {
			return model.JobPosting{}, fmt.Errorf("posting %d: parse published_at %q: %w", j.ID, j.PublishedAt, err)
		}
		p.PublishedAt = t
	}
	return p, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	logger := setupLogger(os.Stderr, debug, jsonLogs)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read postings: %w", err)
	}
	var raw []importedJob
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse postings: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, r := range raw {
		job, err := r.toPosting()
		if err != nil {
			return err
		}
		if err := s.AddJob(ctx, job); err != nil {
			return fmt.Errorf("adding job %d: %w", job.ID, err)
		}
	}

	logger.Info("import complete", "postings", len(raw), "file", args[0])
	return nil
}
