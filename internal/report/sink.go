// Package report persists completed evaluations: a structured JSON
// record and a human-readable report on disk, plus a row in the
// database. Persistence failures never abort a session; the evaluation
// stays in the transcript either way.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/curalab/therasim/internal/domain"
	"github.com/curalab/therasim/internal/shared"
	"github.com/curalab/therasim/internal/store"
)

// Sink receives completed evaluation records.
type Sink interface {
	Persist(ctx context.Context, rec *domain.EvaluationRecord) error
}

// FileSink writes evaluation files into a directory and records the
// evaluation in the repository.
type FileSink struct {
	dir    string
	repo   store.Repository
	logger *slog.Logger
}

// NewFileSink creates a sink writing into dir. repo may be nil when
// database persistence is disabled.
func NewFileSink(dir string, repo store.Repository, logger *slog.Logger) *FileSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSink{dir: dir, repo: repo, logger: logger}
}

// Persist writes evaluation_<timestamp>.json and a Markdown report, and
// inserts the database row. The JSON file is the authoritative export;
// report or database failures are logged and do not fail the call once
// the JSON exists.
func (s *FileSink) Persist(ctx context.Context, rec *domain.EvaluationRecord) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create evaluations directory: %w", err)
	}

	stamp := rec.CreatedAt.Format("20060102_150405")

	jsonPath := filepath.Join(s.dir, fmt.Sprintf("evaluation_%s.json", stamp))
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode evaluation: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return fmt.Errorf("write evaluation json: %w", err)
	}
	s.logger.Info("evaluation JSON saved", "path", jsonPath)

	mdPath := filepath.Join(s.dir, fmt.Sprintf("evaluation_%s.md", stamp))
	if err := os.WriteFile(mdPath, []byte(renderMarkdown(rec)), 0o644); err != nil {
		s.logger.Error("failed to write evaluation report", "path", mdPath, "error", err)
	} else {
		s.logger.Info("evaluation report saved", "path", mdPath)
	}

	if s.repo != nil {
		s.saveWithRetry(ctx, rec)
	}
	return nil
}

// saveWithRetry inserts the database row, retrying on SQLite
// concurrency errors with exponential backoff.
func (s *FileSink) saveWithRetry(ctx context.Context, rec *domain.EvaluationRecord) {
	const maxRetries = 3
	const baseDelay = 50 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := s.repo.SaveEvaluation(ctx, rec)
		if err == nil {
			return
		}

		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			s.logger.Debug("database locked during evaluation insert, retrying",
				"id", rec.ID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}

		s.logger.Error("failed to record evaluation in database", "id", rec.ID, "error", err)
		return
	}
}

// Interpretation maps a score to the band shown on the report.
func Interpretation(score int) string {
	switch {
	case score >= 85:
		return "Excellent - Expert Level Performance"
	case score >= 70:
		return "Good - Solid Therapeutic Skills"
	case score >= 50:
		return "Beginner - Developing Skills"
	default:
		return "Needs Improvement"
	}
}

func renderMarkdown(rec *domain.EvaluationRecord) string {
	var b strings.Builder

	b.WriteString("# Therapist Performance Evaluation\n\n")
	fmt.Fprintf(&b, "*Session Date: %s*\n\n", rec.CreatedAt.Format("January 2, 2006 at 3:04 PM"))
	fmt.Fprintf(&b, "Patient Condition: %s (%s)\n\n", rec.Condition, rec.Severity)
	fmt.Fprintf(&b, "## Overall Score: %d/100\n\n", rec.Result.Score)
	fmt.Fprintf(&b, "*%s*\n\n", Interpretation(rec.Result.Score))

	b.WriteString("## Strengths\n\n")
	for _, item := range rec.Result.Strengths {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	b.WriteString("\n## Areas for Improvement\n\n")
	for _, item := range rec.Result.Improvements {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	b.WriteString("\n## Detailed Feedback\n\n")
	b.WriteString(rec.Result.Feedback)
	b.WriteString("\n\n---\n*VR Therapist Training System - AI-Generated Evaluation*\n")

	return b.String()
}
