// Package hub fans session events out to observers such as the
// websocket feed. Publishing never blocks: slow subscribers lose
// events rather than stalling turn processing.
package hub

import (
	"sync"
	"time"
)

// Event types published by the session.
const (
	TypeSessionStarted  = "session_started"
	TypeTurnCompleted   = "turn_completed"
	TypeEvaluationReady = "evaluation_ready"
	TypeSessionReset    = "session_reset"
)

// Event is a session lifecycle notification.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Turn      int       `json:"turn,omitempty"`
	Therapist string    `json:"therapist,omitempty"`
	Patient   string    `json:"patient,omitempty"`
	Score     int       `json:"score,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// Hub is a simple publish/subscribe broadcaster.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	nextID  int
	bufSize int
}

// New creates a hub. bufSize is the per-subscriber channel depth.
func New(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 32
	}
	return &Hub{
		subs:    make(map[int]chan Event),
		bufSize: bufSize,
	}
}

// Subscribe registers an observer. The returned cancel function must be
// called to release the subscription; it closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Event, h.bufSize)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber, dropping it for
// subscribers whose buffers are full.
func (h *Hub) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
