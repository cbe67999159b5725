// Package gateway mediates all calls to the text-generation service.
// Callers always get usable text back: upstream failures degrade
// through a fixed tier order and end at a canned in-character line,
// never at an error.
package gateway

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// FallbackLine is spoken when every generation tier fails.
const FallbackLine = "I... I'm having trouble focusing right now. Can you repeat that?"

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) string
}

// backend is the raw three-mode surface of the generation provider.
// Split out so tests can fake the provider without network access.
type backend interface {
	// streamChat runs a streaming chat completion and returns the
	// accumulated fragments in arrival order.
	streamChat(ctx context.Context, prompt string) (string, error)
	// chat runs a non-streaming chat completion.
	chat(ctx context.Context, prompt string) (string, error)
	// complete runs a legacy completion-style call on the raw prompt.
	complete(ctx context.Context, prompt string) (string, error)
}

// Gateway implements Generator with a tiered fallback strategy:
// streaming chat, then one non-streaming chat retry, then a
// completion-style call, then the canned fallback line.
type Gateway struct {
	backend backend
	timeout time.Duration
	logger  *slog.Logger
}

func newGateway(b backend, timeout time.Duration, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Gateway{backend: b, timeout: timeout, logger: logger}
}

// Generate returns generated text for the prompt. It never returns an
// error; failures are logged and absorbed by the next tier.
func (g *Gateway) Generate(ctx context.Context, prompt string) string {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := g.backend.streamChat(ctx, prompt)
	if err == nil {
		if out := strings.TrimSpace(text); out != "" {
			return out
		}
		g.logger.Warn("streaming generation returned empty result, retrying without streaming")
		text, err = g.backend.chat(ctx, prompt)
		if err == nil {
			if out := strings.TrimSpace(text); out != "" {
				return out
			}
		}
	}
	if err != nil {
		g.logger.Warn("chat generation failed, falling back to completion mode", "error", err)
	}

	text, err = g.backend.complete(ctx, prompt)
	if err != nil {
		g.logger.Error("all generation tiers failed", "error", err)
		return FallbackLine
	}
	if out := strings.TrimSpace(text); out != "" {
		return out
	}
	g.logger.Error("completion generation returned empty result")
	return FallbackLine
}
