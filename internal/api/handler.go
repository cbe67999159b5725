// Package api provides the HTTP transport for the training session
// server. The endpoint shapes follow the VR client's file-exchange
// protocol: upload notification, polling, reset, and audio download.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/curalab/therasim/internal/domain"
	"github.com/curalab/therasim/internal/hub"
	"github.com/curalab/therasim/internal/session"
	"github.com/curalab/therasim/internal/speech"
	"github.com/curalab/therasim/internal/store"
)

// Handler wires the session state machine to the HTTP boundary.
type Handler struct {
	sess          *session.Session
	repo          store.Repository
	events        *hub.Hub
	audioRoot     string
	allowedOrigin string
	isDev         bool

	mu      sync.Mutex
	pending string // base directory of uploaded audio awaiting processing
}

// NewHandler creates the API handler. audioRoot confines every audio
// path the client supplies; allowedOrigin gates websocket upgrades
// outside development mode.
func NewHandler(sess *session.Session, repo store.Repository, events *hub.Hub, audioRoot, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		sess:          sess,
		repo:          repo,
		events:        events,
		audioRoot:     filepath.Clean(audioRoot),
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// RegisterRoutes registers all session endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/process_wav", h.HandleProcessWav)
	r.Get("/check_status", h.HandleCheckStatus)
	r.Post("/reset_conversation", h.HandleResetConversation)
	r.Get("/get_audio/*", h.HandleGetAudio)
	r.Get("/session", h.HandleSessionStatus)
	r.Get("/evaluations", h.HandleListEvaluations)
	r.Get("/ws/events", h.HandleEvents)
}

// HandleProcessWav records that the VR client finished uploading a
// therapist recording. Processing happens on the next status poll.
func (h *Handler) HandleProcessWav(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		Error(w, http.StatusBadRequest, "invalid form data")
		return
	}

	base := r.FormValue("path")
	if base == "" {
		Error(w, http.StatusBadRequest, "path is required")
		return
	}
	dir, err := h.resolveAudioPath(base)
	if err != nil {
		Error(w, http.StatusBadRequest, "path escapes audio root")
		return
	}

	if r.FormValue("loaded_wav_file") == "patient_speech" {
		h.mu.Lock()
		h.pending = dir
		h.mu.Unlock()
		slog.Info("audio upload registered", "dir", dir)
	}

	JSON(w, http.StatusOK, map[string]string{"status": "done"})
}

// HandleCheckStatus is the client's poll. When an upload is pending it
// runs the whole turn synchronously and answers done; otherwise
// pending. The pending marker is consumed before processing so a
// racing second poller never runs the turn twice.
func (h *Handler) HandleCheckStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	dir := h.pending
	h.pending = ""
	h.mu.Unlock()

	if dir == "" {
		JSON(w, http.StatusOK, map[string]string{"status": "pending"})
		return
	}

	in := filepath.Join(dir, "patient_speech.wav")
	out := filepath.Join(dir, "therapist_speech.wav")

	if _, err := h.sess.SubmitAudio(r.Context(), in, out); err != nil {
		// The turn was aborted with no state change; the client
		// still gets done so the therapist can simply try again.
		if errors.Is(err, speech.ErrUnintelligible) {
			slog.Info("turn aborted, audio unintelligible")
		} else {
			slog.Error("turn processing failed", "error", err)
		}
	}

	JSON(w, http.StatusOK, map[string]string{"status": "done"})
}

// HandleResetConversation starts a fresh session on explicit request.
func (h *Handler) HandleResetConversation(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		Error(w, http.StatusBadRequest, "invalid form data")
		return
	}
	if r.FormValue("reset_conversation") == "yes" {
		h.sess.Reset()
	}
	JSON(w, http.StatusOK, map[string]string{"status": "done"})
}

// HandleGetAudio serves a synthesized WAV back to the VR client.
func (h *Handler) HandleGetAudio(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "*")
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid audio path")
		return
	}

	path, err := h.resolveAudioPath(decoded)
	if err != nil {
		Error(w, http.StatusBadRequest, "path escapes audio root")
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, path)
}

// HandleSessionStatus returns a snapshot of the session state machine.
func (h *Handler) HandleSessionStatus(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.sess.Status())
}

// HandleListEvaluations returns recent persisted evaluations.
func (h *Handler) HandleListEvaluations(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		Error(w, http.StatusServiceUnavailable, "evaluation store not configured")
		return
	}

	const maxLimit = 100
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxLimit {
			Error(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	records, err := h.repo.ListEvaluations(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list evaluations", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list evaluations")
		return
	}
	if records == nil {
		records = []*domain.EvaluationRecord{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"evaluations": records})
}

// resolveAudioPath joins a client-supplied relative path under the
// audio root and rejects anything that escapes it.
func (h *Handler) resolveAudioPath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	joined := filepath.Clean(filepath.Join(h.audioRoot, filepath.FromSlash(p)))
	if joined != h.audioRoot && !strings.HasPrefix(joined, h.audioRoot+string(filepath.Separator)) {
		return "", errors.New("path escapes audio root")
	}
	return joined, nil
}
