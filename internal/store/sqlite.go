package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/curalab/therasim/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serialize writes to avoid SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS evaluations (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		condition TEXT NOT NULL,
		severity TEXT NOT NULL,
		turns INTEGER NOT NULL,
		score INTEGER NOT NULL,
		strengths_json TEXT NOT NULL,
		improvements_json TEXT NOT NULL,
		feedback TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_evaluations_created ON evaluations(created_at);
	CREATE TABLE IF NOT EXISTS session_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		turn INTEGER NOT NULL,
		score INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_session_log_session ON session_log(session_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveEvaluation inserts a completed evaluation record.
func (s *SQLiteStore) SaveEvaluation(ctx context.Context, rec *domain.EvaluationRecord) error {
	strengths, err := json.Marshal(rec.Result.Strengths)
	if err != nil {
		return fmt.Errorf("encode strengths: %w", err)
	}
	improvements, err := json.Marshal(rec.Result.Improvements)
	if err != nil {
		return fmt.Errorf("encode improvements: %w", err)
	}

	query := `
	INSERT INTO evaluations (id, session_id, condition, severity, turns, score, strengths_json, improvements_json, feedback, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.SessionID, string(rec.Condition), string(rec.Severity),
		rec.Turns, rec.Result.Score, string(strengths), string(improvements),
		rec.Result.Feedback, rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

// RecordSessionEvent appends a session lifecycle row to the session log.
func (s *SQLiteStore) RecordSessionEvent(ctx context.Context, ev *domain.SessionEvent) error {
	query := `
	INSERT INTO session_log (session_id, event_type, turn, score, created_at)
	VALUES (?, ?, ?, ?, ?)`

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, query,
		ev.SessionID, ev.EventType, ev.Turn, ev.Score, ev.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert session event: %w", err)
	}
	return nil
}

// ListEvaluations returns the most recent evaluation records, newest first.
func (s *SQLiteStore) ListEvaluations(ctx context.Context, limit int) ([]*domain.EvaluationRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
	SELECT id, session_id, condition, severity, turns, score, strengths_json, improvements_json, feedback, created_at
	FROM evaluations ORDER BY created_at DESC, id LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query evaluations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*domain.EvaluationRecord
	for rows.Next() {
		var rec domain.EvaluationRecord
		var cond, sev, strengths, improvements string
		var createdAt int64

		if err := rows.Scan(&rec.ID, &rec.SessionID, &cond, &sev, &rec.Turns,
			&rec.Result.Score, &strengths, &improvements, &rec.Result.Feedback, &createdAt); err != nil {
			return nil, fmt.Errorf("scan evaluation row: %w", err)
		}
		if err := json.Unmarshal([]byte(strengths), &rec.Result.Strengths); err != nil {
			return nil, fmt.Errorf("decode strengths: %w", err)
		}
		if err := json.Unmarshal([]byte(improvements), &rec.Result.Improvements); err != nil {
			return nil, fmt.Errorf("decode improvements: %w", err)
		}
		rec.Condition = domain.Condition(cond)
		rec.Severity = domain.Severity(sev)
		rec.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evaluation rows: %w", err)
	}
	return records, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
