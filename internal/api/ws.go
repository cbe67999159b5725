package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
)

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// HandleEvents streams session events to an observer over WebSocket.
// Supervisors use this to watch a trainee's session live without
// polling /session.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	// CloseRead cancels the context when the observer disconnects;
	// the feed is one-way so inbound frames are discarded.
	ctx := ws.CloseRead(r.Context())

	events, cancel := h.events.Subscribe()
	defer cancel()

	slog.Info("Event stream attached", "ip", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Event stream closed", "ip", r.RemoteAddr)
			return
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Error("Failed to marshal event", "error", err)
				continue
			}
			if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
				if websocket.CloseStatus(err) == -1 {
					slog.Warn("WebSocket write error", "error", err)
				}
				return
			}
		}
	}
}
