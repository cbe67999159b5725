package domain

import "time"

// Evaluation is the structured result of scoring a completed session.
// Created once at the session-length threshold and immutable afterwards.
type Evaluation struct {
	Score        int      `json:"score"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	Feedback     string   `json:"feedback"`
}

// EvaluationRecord is the persisted form of an Evaluation together with
// the session context it was produced in.
type EvaluationRecord struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Condition Condition  `json:"condition"`
	Severity  Severity   `json:"severity"`
	Turns     int        `json:"turns"`
	Result    Evaluation `json:"result"`
	CreatedAt time.Time  `json:"created_at"`
}
