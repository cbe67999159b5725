// Package session implements the conversation state machine that
// orchestrates a training session: turn sequencing, persona
// assignment, history, and the evaluation trigger.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/curalab/therasim/internal/catalog"
	"github.com/curalab/therasim/internal/domain"
	"github.com/curalab/therasim/internal/evaluation"
	"github.com/curalab/therasim/internal/gateway"
	"github.com/curalab/therasim/internal/hub"
	"github.com/curalab/therasim/internal/prompt"
	"github.com/curalab/therasim/internal/report"
	"github.com/curalab/therasim/internal/sanitize"
	"github.com/curalab/therasim/internal/speech"
	"github.com/curalab/therasim/internal/transcript"
)

// DefaultThreshold is the number of exchanges before evaluation.
const DefaultThreshold = 5

// ErrSessionOver reports a therapist utterance after the evaluation;
// an explicit reset is required to start a new session.
var ErrSessionOver = errors.New("session already evaluated, reset to start a new one")

// Config holds session parameters.
type Config struct {
	// Threshold is the number of completed exchanges that triggers
	// the evaluation. Defaults to DefaultThreshold.
	Threshold int
}

// Deps are the session's collaborators. Generator is required; the
// rest may be nil and are skipped.
type Deps struct {
	Generator   gateway.Generator
	Transcriber speech.Transcriber
	Synthesizer speech.Synthesizer
	Sink        report.Sink
	Events      *hub.Hub
	Transcript  *transcript.Logger
	Logger      *slog.Logger

	// SelectCondition overrides random persona assignment in tests.
	SelectCondition func() (domain.Condition, domain.Severity)
}

// Session is the single process-wide training session. All state
// transitions happen under one mutex so each incoming event is an
// atomic unit of work.
type Session struct {
	mu sync.Mutex

	id         string
	state      domain.SessionState
	condition  domain.Condition
	severity   domain.Severity
	history    []domain.Message
	turns      int
	threshold  int
	evaluation *domain.Evaluation

	deps Deps
}

// New creates an empty session.
func New(cfg Config, deps Deps) *Session {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.SelectCondition == nil {
		deps.SelectCondition = catalog.SelectRandom
	}
	return &Session{
		state:     domain.StateEmpty,
		threshold: cfg.Threshold,
		deps:      deps,
	}
}

// Snapshot is a read-only view of session state.
type Snapshot struct {
	SessionID  string              `json:"session_id,omitempty"`
	State      domain.SessionState `json:"state"`
	Turn       int                 `json:"turn"`
	Threshold  int                 `json:"threshold"`
	Condition  domain.Condition    `json:"condition,omitempty"`
	Severity   domain.Severity     `json:"severity,omitempty"`
	History    []domain.Message    `json:"history"`
	Evaluation *domain.Evaluation  `json:"evaluation,omitempty"`
}

// Status returns a consistent snapshot of the session.
func (s *Session) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]domain.Message, len(s.history))
	copy(history, s.history)

	var ev *domain.Evaluation
	if s.evaluation != nil {
		copied := *s.evaluation
		ev = &copied
	}

	return Snapshot{
		SessionID:  s.id,
		State:      s.state,
		Turn:       s.turns,
		Threshold:  s.threshold,
		Condition:  s.condition,
		Severity:   s.severity,
		History:    history,
		Evaluation: ev,
	}
}

// Reset clears the session back to empty from any state. Persona
// assignment happens only on the next first utterance, never here.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevID := s.id
	s.id = ""
	s.state = domain.StateEmpty
	s.condition = ""
	s.severity = ""
	s.history = nil
	s.turns = 0
	s.evaluation = nil

	s.deps.Logger.Info("session reset", "previous_session_id", prevID)
	if prevID != "" {
		s.logTranscript(transcript.Event{SessionID: prevID, EventType: transcript.EventSessionReset})
		s.publish(hub.Event{Type: hub.TypeSessionReset, SessionID: prevID})
	}
}

// SubmitAudio runs a full turn from a recorded therapist utterance:
// transcribe, exchange, then synthesize the reply at outPath. A failed
// transcription aborts with no state change; a failed synthesis only
// logs, the turn still counts.
func (s *Session) SubmitAudio(ctx context.Context, audioPath, outPath string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deps.Transcriber == nil {
		return "", errors.New("no transcriber configured")
	}

	text, err := s.deps.Transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		if errors.Is(err, speech.ErrUnintelligible) {
			s.deps.Logger.Info("audio unintelligible, turn aborted")
		} else {
			s.deps.Logger.Error("transcription failed, turn aborted", "error", err)
		}
		return "", fmt.Errorf("transcribe therapist utterance: %w", err)
	}

	reply, err := s.processTurn(ctx, text)
	if err != nil {
		return "", err
	}

	if s.deps.Synthesizer != nil {
		if err := s.deps.Synthesizer.Synthesize(ctx, reply, outPath); err != nil {
			s.deps.Logger.Error("speech synthesis failed, continuing text-only", "error", err)
		}
	}
	return reply, nil
}

// SubmitUtterance runs a full turn from an already-transcribed
// therapist utterance and returns the patient reply.
func (s *Session) SubmitUtterance(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processTurn(ctx, text)
}

// processTurn is the single unit of work per therapist utterance.
// Callers must hold the mutex.
func (s *Session) processTurn(ctx context.Context, therapistText string) (string, error) {
	if s.state == domain.StateAwaitingEvaluation || s.state == domain.StateEvaluated {
		return "", ErrSessionOver
	}

	if s.state == domain.StateEmpty {
		s.assignPersona()
	}

	turn := s.turns + 1
	patientPrompt, err := prompt.PatientTurn(s.condition, s.severity, therapistText, s.history, turn)
	if err != nil {
		return "", fmt.Errorf("build patient prompt: %w", err)
	}

	reply := sanitize.Clean(s.deps.Generator.Generate(ctx, patientPrompt))

	s.history = append(s.history,
		domain.Message{Role: domain.RoleTherapist, Content: therapistText},
		domain.Message{Role: domain.RolePatient, Content: reply},
	)
	s.turns = turn

	s.deps.Logger.Info("exchange completed", "session_id", s.id, "turn", s.turns,
		"therapist", therapistText, "patient", reply)
	s.logTranscript(transcript.Event{SessionID: s.id, Turn: s.turns, EventType: transcript.EventUtterance, Role: string(domain.RoleTherapist), Content: therapistText})
	s.logTranscript(transcript.Event{SessionID: s.id, Turn: s.turns, EventType: transcript.EventUtterance, Role: string(domain.RolePatient), Content: reply})
	s.publish(hub.Event{Type: hub.TypeTurnCompleted, SessionID: s.id, Turn: s.turns, Therapist: therapistText, Patient: reply})

	if s.turns >= s.threshold {
		return s.evaluate(ctx), nil
	}
	return reply, nil
}

func (s *Session) assignPersona() {
	s.id = uuid.NewString()
	s.condition, s.severity = s.deps.SelectCondition()
	s.state = domain.StateInProgress

	s.deps.Logger.Info("session started",
		"session_id", s.id,
		"patient_condition", s.condition,
		"severity", s.severity)
	s.logTranscript(transcript.Event{SessionID: s.id, EventType: transcript.EventSessionStarted})
	s.publish(hub.Event{Type: hub.TypeSessionStarted, SessionID: s.id})
}

// evaluate runs the evaluation sub-flow at the threshold transition and
// returns the summary utterance folded into the transcript.
func (s *Session) evaluate(ctx context.Context) string {
	s.state = domain.StateAwaitingEvaluation
	s.deps.Logger.Info("session complete, generating evaluation", "session_id", s.id, "turns", s.turns)

	raw := s.deps.Generator.Generate(ctx, prompt.Evaluator(s.history, s.condition))

	var ev domain.Evaluation
	if raw == gateway.FallbackLine {
		// Generation failed wholesale; there is nothing to parse.
		ev = evaluation.Default()
	} else {
		ev = evaluation.Parse(raw)
	}

	rec := &domain.EvaluationRecord{
		ID:        uuid.NewString(),
		SessionID: s.id,
		Condition: s.condition,
		Severity:  s.severity,
		Turns:     s.turns,
		Result:    ev,
		CreatedAt: time.Now(),
	}
	if s.deps.Sink != nil {
		if err := s.deps.Sink.Persist(ctx, rec); err != nil {
			s.deps.Logger.Error("failed to persist evaluation", "session_id", s.id, "error", err)
		}
	}

	summary := summaryUtterance(ev)
	s.history = append(s.history, domain.Message{Role: domain.RolePatient, Content: summary})
	s.evaluation = &ev
	s.state = domain.StateEvaluated

	s.deps.Logger.Info("evaluation ready", "session_id", s.id, "score", ev.Score)
	s.logTranscript(transcript.Event{SessionID: s.id, Turn: s.turns, EventType: transcript.EventEvaluationReady, Score: ev.Score})
	s.publish(hub.Event{Type: hub.TypeEvaluationReady, SessionID: s.id, Turn: s.turns, Score: ev.Score})

	return summary
}

func summaryUtterance(ev domain.Evaluation) string {
	return fmt.Sprintf(
		"Thank you for the session. Here's your performance: Score %d/100. You did well in: %s. Consider improving: %s.",
		ev.Score,
		strings.Join(lead(ev.Strengths, 2), ", "),
		strings.Join(lead(ev.Improvements, 2), ", "),
	)
}

func lead(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

func (s *Session) logTranscript(event transcript.Event) {
	if s.deps.Transcript != nil {
		s.deps.Transcript.Log(event)
	}
}

func (s *Session) publish(event hub.Event) {
	if s.deps.Events != nil {
		s.deps.Events.Publish(event)
	}
}
