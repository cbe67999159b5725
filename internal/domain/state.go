package domain

import "time"

// SessionEvent is one row of the session log: a lifecycle event
// (start, turn, evaluation, reset) tied to a session.
type SessionEvent struct {
	SessionID string    `json:"session_id"`
	EventType string    `json:"event_type"`
	Turn      int       `json:"turn,omitempty"`
	Score     int       `json:"score,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionState is the lifecycle phase of the single active session.
type SessionState string

const (
	// StateEmpty means no condition has been assigned yet.
	StateEmpty SessionState = "empty"
	// StateInProgress means exchanges are running below the session threshold.
	StateInProgress SessionState = "in_progress"
	// StateAwaitingEvaluation means the threshold was reached and the
	// evaluation has not been produced yet.
	StateAwaitingEvaluation SessionState = "awaiting_evaluation"
	// StateEvaluated means the evaluation was produced and folded into
	// the transcript; only a reset starts a new session.
	StateEvaluated SessionState = "evaluated"
)
