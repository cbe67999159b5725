// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/curalab/therasim/internal/domain"
)

// Repository defines the interface for persisting evaluation records.
type Repository interface {
	// SaveEvaluation inserts a completed evaluation record.
	SaveEvaluation(ctx context.Context, rec *domain.EvaluationRecord) error

	// ListEvaluations returns the most recent evaluation records,
	// newest first, up to limit.
	ListEvaluations(ctx context.Context, limit int) ([]*domain.EvaluationRecord, error)

	// RecordSessionEvent appends a session lifecycle row to the
	// session log.
	RecordSessionEvent(ctx context.Context, ev *domain.SessionEvent) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
