// Package transcript writes session transcripts as NDJSON, one event
// per line, asynchronously so logging never blocks turn processing.
package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event is a single transcript entry.
type Event struct {
	Timestamp time.Time `json:"ts"`
	SessionID string    `json:"session_id"`
	Turn      int       `json:"turn,omitempty"`
	EventType string    `json:"event_type"`
	Role      string    `json:"role,omitempty"`
	Content   string    `json:"content,omitempty"`
	Score     int       `json:"score,omitempty"`
}

// Event types recorded by the session.
const (
	EventSessionStarted  = "session_started"
	EventUtterance       = "utterance"
	EventEvaluationReady = "evaluation_ready"
	EventSessionReset    = "session_reset"
)

// Config controls NDJSON transcript logging.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int

	// GlobalPath, when set, receives every event in addition to the
	// per-session files.
	GlobalEnabled bool
	GlobalPath    string
}

// Logger is an asynchronous NDJSON transcript writer. Events are
// dropped with a warning if the queue is full.
type Logger struct {
	cfg    Config
	logger *slog.Logger

	queue chan Event
	done  chan struct{}
	once  sync.Once
}

// NewLogger creates a transcript logger and starts its worker. A
// disabled logger accepts events and discards them.
func NewLogger(cfg Config, logger *slog.Logger) (*Logger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	l := &Logger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
	}

	if !cfg.Enabled {
		close(l.done)
		return l, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}
	if cfg.GlobalEnabled {
		if cfg.GlobalPath == "" {
			return nil, fmt.Errorf("global transcript enabled without a path")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o755); err != nil {
			return nil, fmt.Errorf("create global transcript directory: %w", err)
		}
	}

	go l.run()
	return l, nil
}

// Log enqueues an event. Never blocks.
func (l *Logger) Log(event Event) {
	if !l.cfg.Enabled {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case l.queue <- event:
	default:
		l.logger.Warn("transcript queue full, dropping event",
			"session_id", event.SessionID, "event_type", event.EventType)
	}
}

// Close stops accepting events and drains the queue.
func (l *Logger) Close() error {
	l.once.Do(func() { close(l.queue) })
	<-l.done
	return nil
}

func (l *Logger) run() {
	defer close(l.done)
	for event := range l.queue {
		l.write(event)
	}
}

func (l *Logger) write(event Event) {
	line, err := json.Marshal(event)
	if err != nil {
		l.logger.Error("failed to encode transcript event", "error", err)
		return
	}
	line = append(line, '\n')

	l.appendLine(filepath.Join(l.cfg.Dir, event.SessionID+".ndjson"), line)
	if l.cfg.GlobalEnabled {
		l.appendLine(l.cfg.GlobalPath, line)
	}
}

func (l *Logger) appendLine(path string, line []byte) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.logger.Error("failed to open transcript file", "path", path, "error", err)
		return
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(line); err != nil {
		l.logger.Error("failed to write transcript event", "path", path, "error", err)
	}
}
