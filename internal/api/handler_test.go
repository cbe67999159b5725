package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/curalab/therasim/internal/domain"
	"github.com/curalab/therasim/internal/hub"
	"github.com/curalab/therasim/internal/session"
	"github.com/curalab/therasim/internal/store"
)

type fakeGenerator struct {
	reply string
}

func (g *fakeGenerator) Generate(_ context.Context, _ string) string {
	return g.reply
}

type fakeTranscriber struct {
	text  string
	calls int
	last  string
}

func (t *fakeTranscriber) Transcribe(_ context.Context, audioPath string) (string, error) {
	t.calls++
	t.last = audioPath
	return t.text, nil
}

type fakeSynthesizer struct {
	calls int
	last  string
}

func (s *fakeSynthesizer) Synthesize(_ context.Context, _ string, outPath string) error {
	s.calls++
	s.last = outPath
	return nil
}

type fakeRepo struct {
	records []*domain.EvaluationRecord
	err     error
}

func (r *fakeRepo) SaveEvaluation(_ context.Context, rec *domain.EvaluationRecord) error {
	r.records = append(r.records, rec)
	return nil
}

func (r *fakeRepo) ListEvaluations(_ context.Context, limit int) ([]*domain.EvaluationRecord, error) {
	if r.err != nil {
		return nil, r.err
	}
	if limit < len(r.records) {
		return r.records[:limit], nil
	}
	return r.records, nil
}

func (r *fakeRepo) RecordSessionEvent(_ context.Context, _ *domain.SessionEvent) error { return nil }

func (r *fakeRepo) Ping(_ context.Context) error { return nil }
func (r *fakeRepo) Close() error                 { return nil }

type testEnv struct {
	server      *httptest.Server
	sess        *session.Session
	transcriber *fakeTranscriber
	synthesizer *fakeSynthesizer
	audioRoot   string
}

func newTestEnv(t *testing.T, repo *fakeRepo) *testEnv {
	t.Helper()

	transcriber := &fakeTranscriber{text: "How have you been feeling this week?"}
	synthesizer := &fakeSynthesizer{}
	sess := session.New(session.Config{Threshold: 5}, session.Deps{
		Generator:   &fakeGenerator{reply: "I guess I have been feeling pretty overwhelmed lately."},
		Transcriber: transcriber,
		Synthesizer: synthesizer,
		SelectCondition: func() (domain.Condition, domain.Severity) {
			return domain.ConditionDepression, domain.SeverityModerate
		},
	})

	audioRoot := t.TempDir()
	h := NewHandler(sess, repoOrNil(repo), hub.New(16), audioRoot, "", true)
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testEnv{
		server:      srv,
		sess:        sess,
		transcriber: transcriber,
		synthesizer: synthesizer,
		audioRoot:   audioRoot,
	}
}

// repoOrNil keeps the Handler's nil check meaningful: a nil *fakeRepo
// wrapped in the interface would not compare equal to nil.
func repoOrNil(r *fakeRepo) store.Repository {
	if r == nil {
		return nil
	}
	return r
}

func postForm(t *testing.T, url string, form map[string]string) *http.Response {
	t.Helper()
	values := make([]string, 0, len(form))
	for k, v := range form {
		values = append(values, k+"="+v)
	}
	resp, err := http.Post(url, "application/x-www-form-urlencoded", strings.NewReader(strings.Join(values, "&")))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeStatus(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body["status"]
}

func TestProcessWavThenCheckStatusRunsTurn(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	resp := postForm(t, env.server.URL+"/process_wav", map[string]string{
		"path":            "session1",
		"loaded_wav_file": "patient_speech",
	})
	if got := decodeStatus(t, resp); got != "done" {
		t.Fatalf("process_wav status = %q, want done", got)
	}

	resp, err := http.Get(env.server.URL + "/check_status")
	if err != nil {
		t.Fatalf("GET check_status: %v", err)
	}
	if got := decodeStatus(t, resp); got != "done" {
		t.Fatalf("check_status = %q, want done", got)
	}

	if env.transcriber.calls != 1 {
		t.Errorf("transcriber calls = %d, want 1", env.transcriber.calls)
	}
	wantIn := filepath.Join(env.audioRoot, "session1", "patient_speech.wav")
	if env.transcriber.last != wantIn {
		t.Errorf("transcriber path = %q, want %q", env.transcriber.last, wantIn)
	}
	wantOut := filepath.Join(env.audioRoot, "session1", "therapist_speech.wav")
	if env.synthesizer.last != wantOut {
		t.Errorf("synthesizer path = %q, want %q", env.synthesizer.last, wantOut)
	}

	snap := env.sess.Status()
	if snap.Turn != 1 {
		t.Errorf("turn = %d, want 1", snap.Turn)
	}
}

func TestCheckStatusWithoutUploadIsPending(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.server.URL + "/check_status")
	if err != nil {
		t.Fatalf("GET check_status: %v", err)
	}
	if got := decodeStatus(t, resp); got != "pending" {
		t.Fatalf("check_status = %q, want pending", got)
	}
	if env.transcriber.calls != 0 {
		t.Errorf("transcriber calls = %d, want 0", env.transcriber.calls)
	}
}

func TestCheckStatusConsumesPendingMarker(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	postForm(t, env.server.URL+"/process_wav", map[string]string{
		"path":            "session1",
		"loaded_wav_file": "patient_speech",
	}).Body.Close()

	resp, _ := http.Get(env.server.URL + "/check_status")
	decodeStatus(t, resp)

	resp, _ = http.Get(env.server.URL + "/check_status")
	if got := decodeStatus(t, resp); got != "pending" {
		t.Fatalf("second check_status = %q, want pending", got)
	}
	if env.transcriber.calls != 1 {
		t.Errorf("transcriber calls = %d, want 1", env.transcriber.calls)
	}
}

func TestProcessWavRequiresPath(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	resp := postForm(t, env.server.URL+"/process_wav", map[string]string{
		"loaded_wav_file": "patient_speech",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestProcessWavRejectsEscapingPath(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	resp := postForm(t, env.server.URL+"/process_wav", map[string]string{
		"path":            url.QueryEscape("../outside"),
		"loaded_wav_file": "patient_speech",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestResetConversation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	if _, err := env.sess.SubmitUtterance(context.Background(), "Tell me about your week."); err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}

	resp := postForm(t, env.server.URL+"/reset_conversation", map[string]string{
		"reset_conversation": "yes",
	})
	if got := decodeStatus(t, resp); got != "done" {
		t.Fatalf("reset status = %q, want done", got)
	}

	snap := env.sess.Status()
	if snap.State != domain.StateEmpty || snap.Turn != 0 {
		t.Errorf("after reset state = %s turn = %d, want empty/0", snap.State, snap.Turn)
	}
}

func TestResetConversationIgnoredWithoutConfirmation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	if _, err := env.sess.SubmitUtterance(context.Background(), "Tell me about your week."); err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}

	postForm(t, env.server.URL+"/reset_conversation", map[string]string{
		"reset_conversation": "no",
	}).Body.Close()

	if snap := env.sess.Status(); snap.Turn != 1 {
		t.Errorf("turn = %d, want 1 (reset should not have run)", snap.Turn)
	}
}

func TestGetAudioServesFile(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	dir := filepath.Join(env.audioRoot, "session1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	want := []byte("RIFF fake wav payload")
	if err := os.WriteFile(filepath.Join(dir, "therapist_speech.wav"), want, 0o644); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(env.server.URL + "/get_audio/" + url.QueryEscape("session1/therapist_speech.wav"))
	if err != nil {
		t.Fatalf("GET get_audio: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("content type = %q, want audio/wav", ct)
	}
}

func TestGetAudioRejectsTraversal(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.server.URL + "/get_audio/" + url.QueryEscape("../../etc/passwd"))
	if err != nil {
		t.Fatalf("GET get_audio: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSessionStatusEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	if _, err := env.sess.SubmitUtterance(context.Background(), "How are you today?"); err != nil {
		t.Fatalf("SubmitUtterance: %v", err)
	}

	resp, err := http.Get(env.server.URL + "/session")
	if err != nil {
		t.Fatalf("GET session: %v", err)
	}
	defer resp.Body.Close()

	var snap session.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.State != domain.StateInProgress {
		t.Errorf("state = %s, want in_progress", snap.State)
	}
	if len(snap.History) != 2 {
		t.Errorf("history length = %d, want 2", len(snap.History))
	}
}

func TestListEvaluations(t *testing.T) {
	t.Parallel()
	repo := &fakeRepo{records: []*domain.EvaluationRecord{
		{ID: "a", SessionID: "s1", Condition: domain.ConditionAnxiety},
		{ID: "b", SessionID: "s2", Condition: domain.ConditionPTSD},
	}}
	env := newTestEnv(t, repo)

	resp, err := http.Get(env.server.URL + "/evaluations?limit=1")
	if err != nil {
		t.Fatalf("GET evaluations: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Evaluations []*domain.EvaluationRecord `json:"evaluations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Evaluations) != 1 {
		t.Errorf("evaluations length = %d, want 1", len(body.Evaluations))
	}
}

func TestListEvaluationsRejectsBadLimit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &fakeRepo{})

	for _, limit := range []string{"zero", "0", "-1", "101", "10000000"} {
		resp, err := http.Get(env.server.URL + "/evaluations?limit=" + limit)
		if err != nil {
			t.Fatalf("GET evaluations: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d, want 400", limit, resp.StatusCode)
		}
	}
}

func TestEventsRejectsForeignOrigin(t *testing.T) {
	t.Parallel()

	sess := session.New(session.Config{}, session.Deps{Generator: &fakeGenerator{reply: "ok"}})
	h := NewHandler(sess, nil, hub.New(16), t.TempDir(), "https://app.example.com", false)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/ws/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Origin", "https://evil.example.com")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET ws/events: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestEventsAllowsConfiguredOrigin(t *testing.T) {
	t.Parallel()

	sess := session.New(session.Config{}, session.Deps{Generator: &fakeGenerator{reply: "ok"}})
	h := NewHandler(sess, nil, hub.New(16), t.TempDir(), "https://app.example.com", false)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	// Not a real websocket handshake, so the upgrade itself fails,
	// but it must get past the origin gate.
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/ws/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Origin", "https://app.example.com")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET ws/events: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusForbidden {
		t.Fatal("configured origin was rejected")
	}
}

func TestListEvaluationsWithoutStore(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.server.URL + "/evaluations")
	if err != nil {
		t.Fatalf("GET evaluations: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}
