// Package anthropic adapts the Anthropic Messages API to backend.Backend.
package anthropic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Iron-Ham/workcrew/internal/backend"
	"github.com/Iron-Ham/workcrew/internal/errors"
	"github.com/Iron-Ham/workcrew/internal/model"
)

// DefaultModels maps the default tier names to Anthropic models, highest
// capability first.
var DefaultModels = map[string]string{
	"large":  "claude-opus-4-1",
	"medium": "claude-sonnet-4-5",
	"small":  "claude-3-5-haiku-latest",
}

// Options configures the adapter.
type Options struct {
	APIKey    string
	BaseURL   string
	MaxTokens int64
	// Timeout bounds a single call; exceeding it is a transient timeout.
	Timeout time.Duration
	// Models maps a tier to a model identifier, overriding DefaultModels.
	Models map[string]string
}

// Backend calls the Anthropic Messages API.
type Backend struct {
	client *anthropic.Client
	opts   Options
}

// New creates a Backend. SDK-level retries are disabled because tier
// fallback is owned by the invoker.
func New(optFns ...func(o *Options)) *Backend {
	opts := Options{MaxTokens: 2048}
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
	client := anthropic.NewClient(clientOpts...)
	return &Backend{client: &client, opts: opts}
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return "anthropic" }

// ModelFor resolves the model identifier for tier.
func (b *Backend) ModelFor(tier string) (string, error) {
	if m, ok := b.opts.Models[tier]; ok && m != "" {
		return m, nil
	}
	if m, ok := DefaultModels[tier]; ok {
		return m, nil
	}
	return "", errors.NewValidationError("no anthropic model configured for tier").WithField("tier").WithValue(tier)
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

	resp, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		MaxTokens: b.opts.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return backend.Response{}, classify(tier, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	return backend.Response{
		Text:  text.String(),
		Model: modelID,
		Usage: model.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

func classify(tier string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return backend.FromStatus(tier, apiErr.StatusCode, fmt.Errorf("anthropic api error: %w", err))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return backend.Timeout(tier, err)
	}
	return fmt.Errorf("anthropic api error: %w", err)
}
