package inference

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Reasoner is the reasoning service boundary: a system and a user message in,
// raw reply text out.
type Reasoner interface {
	Complete(ctx context.Context, system string, prompt string) (string, error)
}

// OpenAIConfig configures the chat-completions reasoner.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string // optional, for compatible endpoints
	Model       string
	Temperature float64
	MaxTokens   int64
	Seed        int64 // 0 leaves sampling unseeded
}

// OpenAIReasoner calls an OpenAI-compatible chat completions endpoint.
type OpenAIReasoner struct {
	client openai.Client
	cfg    OpenAIConfig
}

// NewOpenAIReasoner creates a reasoner. Retries are left to the caller.
func NewOpenAIReasoner(cfg OpenAIConfig) (*OpenAIReasoner, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key cannot be empty")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.ChatModelGPT4oMini)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIReasoner{
		client: openai.NewClient(opts...),
		cfg:    cfg,
	}, nil
}

// Complete implements Reasoner.
func (r *OpenAIReasoner) Complete(ctx context.Context, system string, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(r.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(r.cfg.Temperature),
		MaxTokens:   openai.Int(r.cfg.MaxTokens),
	}
	if r.cfg.Seed != 0 {
		params.Seed = openai.Int(r.cfg.Seed)
	}

	completion, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
