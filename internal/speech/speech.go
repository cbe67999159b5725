// Package speech wraps the external speech-to-text and text-to-speech
// engines. Both are black-box HTTP services; failure modes are typed
// errors instead of sentinel substrings in otherwise-valid text.
package speech

import (
	"context"
	"errors"
)

// ErrUnintelligible reports that the recognizer could not make out any
// speech in the audio. The turn is aborted and the therapist repeats
// themselves; this is the only externally retried failure.
var ErrUnintelligible = errors.New("speech recognition could not understand audio")

// Transcriber converts a WAV file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

// Synthesizer renders text as speech, writing a WAV file at outPath.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, outPath string) error
}
