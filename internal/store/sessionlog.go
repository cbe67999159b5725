package store

import (
	"context"
	"log/slog"

	"github.com/curalab/therasim/internal/domain"
	"github.com/curalab/therasim/internal/hub"
)

// SessionLog mirrors session lifecycle events from the hub into the
// database. It runs as a background subscriber so turn processing
// never waits on a log insert.
type SessionLog struct {
	repo   Repository
	cancel func()
	done   chan struct{}
	logger *slog.Logger
}

// StartSessionLog subscribes to the hub and records every event until
// ctx is cancelled or Stop is called.
func StartSessionLog(ctx context.Context, repo Repository, events *hub.Hub, logger *slog.Logger) *SessionLog {
	if logger == nil {
		logger = slog.Default()
	}

	ch, cancel := events.Subscribe()
	l := &SessionLog{
		repo:   repo,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: logger,
	}

	go l.run(ctx, ch)
	return l
}

func (l *SessionLog) run(ctx context.Context, ch <-chan hub.Event) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			row := &domain.SessionEvent{
				SessionID: ev.SessionID,
				EventType: ev.Type,
				Turn:      ev.Turn,
				Score:     ev.Score,
				CreatedAt: ev.Timestamp,
			}
			if err := l.repo.RecordSessionEvent(ctx, row); err != nil {
				l.logger.Error("failed to record session event",
					"session_id", ev.SessionID, "event_type", ev.Type, "error", err)
			}
		}
	}
}

// Stop unsubscribes and waits for the worker to drain.
func (l *SessionLog) Stop() {
	l.cancel()
	<-l.done
}
