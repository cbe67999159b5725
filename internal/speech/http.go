package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultRequestTimeout = 60 * time.Second

// HTTPTranscriber talks to a speech-recognition engine that accepts a
// WAV body and answers {"text": "..."}.
type HTTPTranscriber struct {
	url    string
	client *http.Client
}

// NewHTTPTranscriber creates a transcriber against the given endpoint.
func NewHTTPTranscriber(url string) *HTTPTranscriber {
	return &HTTPTranscriber{
		url:    url,
		client: &http.Client{Timeout: defaultRequestTimeout},
	}
}

// Transcribe uploads the WAV file and returns the recognized text.
// Empty recognition results and explicit unprocessable replies map to
// ErrUnintelligible; everything else is a provider error.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, wavPath string) (string, error) {
	audio, err := os.ReadFile(wavPath)
	if err != nil {
		return "", fmt.Errorf("read audio file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("build recognition request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("speech recognition request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return "", ErrUnintelligible
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("speech recognition returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode recognition response: %w", err)
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", ErrUnintelligible
	}
	return text, nil
}

// HTTPSynthesizer talks to a text-to-speech engine that accepts
// {"text": "..."} and answers with WAV bytes.
type HTTPSynthesizer struct {
	url    string
	client *http.Client
}

// NewHTTPSynthesizer creates a synthesizer against the given endpoint.
// The engine is constructed once at startup and injected; there is no
// lazy global instance.
func NewHTTPSynthesizer(url string) *HTTPSynthesizer {
	return &HTTPSynthesizer{
		url:    url,
		client: &http.Client{Timeout: defaultRequestTimeout},
	}
}

// Synthesize renders text to speech and writes the WAV at outPath.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text, outPath string) error {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("encode synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("speech synthesis request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("speech synthesis returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// The engine only produces WAV; keep the extension honest.
	if strings.HasSuffix(outPath, ".mp3") {
		outPath = strings.TrimSuffix(outPath, ".mp3") + ".wav"
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create audio file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("write audio file: %w", err)
	}
	return nil
}
