// Package domain holds the core entities of the training session.
package domain

// Role identifies the speaker of a transcript message.
type Role string

const (
	// RoleTherapist is the human trainee practicing clinical skills.
	RoleTherapist Role = "therapist"
	// RolePatient is the simulated patient.
	RolePatient Role = "patient"
)

// Message is a single utterance in the session transcript.
// Immutable once appended to a session's history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
