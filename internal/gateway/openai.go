package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Config holds generation provider settings.
type Config struct {
	APIKey      string
	BaseURL     string // OpenAI-compatible endpoint, e.g. the HF router
	Model       string
	MaxTokens   int64
	Temperature float64
	Timeout     time.Duration
}

// NewOpenAI builds a Gateway backed by an OpenAI-compatible provider.
func NewOpenAI(cfg Config, logger *slog.Logger) *Gateway {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}

	return newGateway(&openAIBackend{
		client:      &client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, cfg.Timeout, logger)
}

type openAIBackend struct {
	client      *openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

func (b *openAIBackend) chatParams(prompt string) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model: openai.ChatModel(b.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxTokens:   openai.Int(b.maxTokens),
		Temperature: openai.Float(b.temperature),
	}
}

func (b *openAIBackend) streamChat(ctx context.Context, prompt string) (string, error) {
	stream := b.client.Chat.Completions.NewStreaming(ctx, b.chatParams(prompt))
	defer func() { _ = stream.Close() }()

	var out strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			out.WriteString(chunk.Choices[0].Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("streaming chat completion: %w", err)
	}
	return out.String(), nil
}

func (b *openAIBackend) chat(ctx context.Context, prompt string) (string, error) {
	completion, err := b.client.Chat.Completions.New(ctx, b.chatParams(prompt))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", nil
	}
	return completion.Choices[0].Message.Content, nil
}

func (b *openAIBackend) complete(ctx context.Context, prompt string) (string, error) {
	completion, err := b.client.Completions.New(ctx, openai.CompletionNewParams{
		Model:       openai.CompletionNewParamsModel(b.model),
		Prompt:      openai.CompletionNewParamsPromptUnion{OfString: openai.String(prompt)},
		MaxTokens:   openai.Int(b.maxTokens),
		Temperature: openai.Float(b.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("text completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", nil
	}
	return completion.Choices[0].Text, nil
}
