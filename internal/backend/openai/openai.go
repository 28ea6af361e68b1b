// Package openai adapts the OpenAI Chat Completions API to backend.Backend.
package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/Iron-Ham/workcrew/internal/backend"
	"github.com/Iron-Ham/workcrew/internal/errors"
	"github.com/Iron-Ham/workcrew/internal/model"
)

// DefaultModels maps the default tier names to OpenAI models, highest
// capability first.
var DefaultModels = map[string]string{
	"large":  "gpt-4.1",
	"medium": "gpt-4.1-mini",
	"small":  "gpt-4.1-nano",
}

// Options configures the adapter.
type Options struct {
	APIKey              string
	BaseURL             string
	MaxCompletionTokens int64
	// Timeout bounds a single call; exceeding it is a transient timeout.
	Timeout time.Duration
	// Models maps a tier to a model identifier, overriding DefaultModels.
	Models map[string]string
}

// Backend calls the OpenAI Chat Completions API.
type Backend struct {
	client *openai.Client
	opts   Options
}

// New creates a Backend. SDK-level retries are disabled because tier
// fallback is owned by the invoker.
func New(optFns ...func(o *Options)) *Backend {
	opts := Options{MaxCompletionTokens: 2048}
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := openai.NewClient(clientOpts...)
	return &Backend{client: &client, opts: opts}
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return "openai" }

// ModelFor resolves the model identifier for tier.
func (b *Backend) ModelFor(tier string) (string, error) {
	if m, ok := b.opts.Models[tier]; ok && m != "" {
		return m, nil
	}
	if m, ok := DefaultModels[tier]; ok {
		return m, nil
	}
	return "", errors.NewValidationError("no openai model configured for tier").WithField("tier").WithValue(tier)
}

// Call implements backend.Backend.
func (b *Backend) Call(ctx context.Context, tier, prompt string) (backend.Response, error) {
	modelID, err := b.ModelFor(tier)
	if err != nil {
		return backend.Response{}, err
	}
	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}

	resp, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(modelID),
		MaxCompletionTokens: openai.Int(b.opts.MaxCompletionTokens),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return backend.Response{}, classify(tier, err)
	}
	if len(resp.Choices) == 0 {
		return backend.Response{}, fmt.Errorf("openai: no choices returned")
	}

	return backend.Response{
		Text:  resp.Choices[0].Message.Content,
		Model: modelID,
		Usage: model.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func classify(tier string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return backend.FromStatus(tier, apiErr.StatusCode, fmt.Errorf("openai api error: %w", err))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return backend.Timeout(tier, err)
	}
	return fmt.Errorf("openai api error: %w", err)
}
