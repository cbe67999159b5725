package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/curalab/therasim/internal/domain"
	"github.com/curalab/therasim/internal/speech"
)

const evalOutput = `SCORE: 78

STRENGTHS:
- Warm opening
- Good reflections
- Patient pacing

IMPROVEMENTS:
- Fewer closed questions
- More silence tolerance

FEEDBACK:
A genuinely solid first session.`

// fakeGenerator answers patient prompts with dialogue and the
// evaluator prompt with a canned evaluation.
type fakeGenerator struct {
	calls int
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) string {
	f.calls++
	if strings.Contains(prompt, "expert clinical supervisor") {
		return evalOutput
	}
	return "I guess I've been feeling pretty overwhelmed lately."
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(context.Context, string) (string, error) {
	return f.text, f.err
}

type fakeSynthesizer struct {
	calls int
	err   error
	last  string
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, text, _ string) error {
	f.calls++
	f.last = text
	return f.err
}

type fakeSink struct {
	records []*domain.EvaluationRecord
	err     error
}

func (f *fakeSink) Persist(_ context.Context, rec *domain.EvaluationRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func fixedSelect() (domain.Condition, domain.Severity) {
	return domain.ConditionDepression, domain.SeverityModerate
}

func newTestSession(threshold int, deps Deps) *Session {
	if deps.Generator == nil {
		deps.Generator = &fakeGenerator{}
	}
	if deps.SelectCondition == nil {
		deps.SelectCondition = fixedSelect
	}
	return New(Config{Threshold: threshold}, deps)
}

func TestFirstUtteranceAssignsPersona(t *testing.T) {
	t.Parallel()

	s := newTestSession(5, Deps{})
	if got := s.Status(); got.State != domain.StateEmpty {
		t.Fatalf("fresh session state = %s, want empty", got.State)
	}

	reply, err := s.SubmitUtterance(context.Background(), "How are you feeling today?")
	if err != nil {
		t.Fatalf("SubmitUtterance failed: %v", err)
	}
	if reply == "" {
		t.Fatal("expected a patient reply")
	}

	got := s.Status()
	if got.State != domain.StateInProgress {
		t.Errorf("state = %s, want in_progress", got.State)
	}
	if got.Turn != 1 {
		t.Errorf("turn = %d, want 1", got.Turn)
	}
	if got.Condition != domain.ConditionDepression || got.Severity != domain.SeverityModerate {
		t.Errorf("persona = %s/%s", got.Condition, got.Severity)
	}
	if got.SessionID == "" {
		t.Error("expected a session id after persona assignment")
	}
	if len(got.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(got.History))
	}
	if got.History[0].Role != domain.RoleTherapist || got.History[1].Role != domain.RolePatient {
		t.Errorf("history roles = %s, %s", got.History[0].Role, got.History[1].Role)
	}
}

func TestThresholdTriggersEvaluationExactlyOnce(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{}
	s := newTestSession(5, Deps{Sink: sink})
	ctx := context.Background()

	var lastReply string
	for i := 1; i <= 5; i++ {
		reply, err := s.SubmitUtterance(ctx, fmt.Sprintf("therapist utterance %d", i))
		if err != nil {
			t.Fatalf("turn %d failed: %v", i, err)
		}
		lastReply = reply

		got := s.Status()
		if got.Turn != i {
			t.Errorf("after turn %d: counter = %d", i, got.Turn)
		}
		if i < 5 && got.State != domain.StateInProgress {
			t.Errorf("after turn %d: state = %s", i, got.State)
		}
	}

	got := s.Status()
	if got.State != domain.StateEvaluated {
		t.Fatalf("state = %s, want evaluated", got.State)
	}
	if got.Turn != 5 {
		t.Errorf("turn counter exceeded threshold: %d", got.Turn)
	}
	if len(sink.records) != 1 {
		t.Fatalf("persist called %d times, want 1", len(sink.records))
	}

	rec := sink.records[0]
	if rec.Result.Score != 78 {
		t.Errorf("persisted score = %d, want 78", rec.Result.Score)
	}
	if rec.Condition != domain.ConditionDepression || rec.Turns != 5 {
		t.Errorf("record context: %+v", rec)
	}

	// Final history entry is a synthetic patient message derived
	// from the evaluation.
	final := got.History[len(got.History)-1]
	if final.Role != domain.RolePatient {
		t.Errorf("final role = %s, want patient", final.Role)
	}
	for _, want := range []string{"Score 78/100", "Warm opening", "Good reflections", "Fewer closed questions"} {
		if !strings.Contains(final.Content, want) {
			t.Errorf("summary missing %q: %s", want, final.Content)
		}
	}
	if final.Content != lastReply {
		t.Error("threshold turn must return the summary utterance")
	}
	if got.Evaluation == nil || got.Evaluation.Score != 78 {
		t.Errorf("snapshot evaluation = %+v", got.Evaluation)
	}
}

func TestUtteranceAfterEvaluationFails(t *testing.T) {
	t.Parallel()

	s := newTestSession(1, Deps{})
	ctx := context.Background()

	if _, err := s.SubmitUtterance(ctx, "only exchange"); err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	if got := s.Status(); got.State != domain.StateEvaluated {
		t.Fatalf("state = %s", got.State)
	}

	if _, err := s.SubmitUtterance(ctx, "one more thing"); !errors.Is(err, ErrSessionOver) {
		t.Errorf("err = %v, want ErrSessionOver", err)
	}
	if got := s.Status(); got.Turn != 1 {
		t.Errorf("turn counter moved after session end: %d", got.Turn)
	}
}

func TestResetClearsEverything(t *testing.T) {
	t.Parallel()

	s := newTestSession(1, Deps{})
	ctx := context.Background()

	if _, err := s.SubmitUtterance(ctx, "hello"); err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	s.Reset()

	got := s.Status()
	if got.State != domain.StateEmpty {
		t.Errorf("state = %s, want empty", got.State)
	}
	if got.Turn != 0 || len(got.History) != 0 || got.Condition != "" || got.Severity != "" || got.Evaluation != nil {
		t.Errorf("reset left residue: %+v", got)
	}

	// A new session starts cleanly after reset.
	if _, err := s.SubmitUtterance(ctx, "hello again"); err != nil {
		t.Fatalf("turn after reset failed: %v", err)
	}
	if got := s.Status(); got.Turn != 1 || got.State != domain.StateEvaluated {
		t.Errorf("after reset turn: %+v", got)
	}
}

func TestUnintelligibleAudioAbortsWithoutMutation(t *testing.T) {
	t.Parallel()

	s := newTestSession(5, Deps{
		Transcriber: &fakeTranscriber{err: speech.ErrUnintelligible},
		Synthesizer: &fakeSynthesizer{},
	})

	_, err := s.SubmitAudio(context.Background(), "in.wav", "out.wav")
	if !errors.Is(err, speech.ErrUnintelligible) {
		t.Fatalf("err = %v, want ErrUnintelligible", err)
	}

	got := s.Status()
	if got.State != domain.StateEmpty || got.Turn != 0 || len(got.History) != 0 {
		t.Errorf("aborted turn mutated state: %+v", got)
	}
}

func TestSubmitAudioSynthesizesReply(t *testing.T) {
	t.Parallel()

	synth := &fakeSynthesizer{}
	s := newTestSession(5, Deps{
		Transcriber: &fakeTranscriber{text: "Tell me about your week."},
		Synthesizer: synth,
	})

	reply, err := s.SubmitAudio(context.Background(), filepath.Join("base", "patient_speech.wav"), filepath.Join("base", "therapist_speech.wav"))
	if err != nil {
		t.Fatalf("SubmitAudio failed: %v", err)
	}
	if synth.calls != 1 || synth.last != reply {
		t.Errorf("synthesizer calls=%d last=%q reply=%q", synth.calls, synth.last, reply)
	}
}

func TestSynthesisFailureDoesNotAbortTurn(t *testing.T) {
	t.Parallel()

	s := newTestSession(5, Deps{
		Transcriber: &fakeTranscriber{text: "How did that make you feel?"},
		Synthesizer: &fakeSynthesizer{err: errors.New("engine down")},
	})

	if _, err := s.SubmitAudio(context.Background(), "in.wav", "out.wav"); err != nil {
		t.Fatalf("turn should survive synthesis failure: %v", err)
	}
	if got := s.Status(); got.Turn != 1 {
		t.Errorf("turn = %d, want 1", got.Turn)
	}
}

func TestPersistFailureDoesNotAbortEvaluation(t *testing.T) {
	t.Parallel()

	s := newTestSession(1, Deps{Sink: &fakeSink{err: errors.New("disk full")}})

	if _, err := s.SubmitUtterance(context.Background(), "hello"); err != nil {
		t.Fatalf("turn failed: %v", err)
	}
	got := s.Status()
	if got.State != domain.StateEvaluated || got.Evaluation == nil {
		t.Errorf("evaluation must remain in memory: %+v", got)
	}
}

func TestTurnCounterNonDecreasing(t *testing.T) {
	t.Parallel()

	s := newTestSession(3, Deps{})
	ctx := context.Background()

	prev := 0
	for i := 0; i < 5; i++ {
		_, _ = s.SubmitUtterance(ctx, "going on")
		got := s.Status()
		if got.Turn < prev {
			t.Fatalf("turn counter decreased: %d -> %d", prev, got.Turn)
		}
		if got.Turn > 3 {
			t.Fatalf("turn counter exceeded threshold: %d", got.Turn)
		}
		prev = got.Turn
	}
}
