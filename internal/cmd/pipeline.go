package cmd

import (
	"fmt"

	"github.com/Iron-Ham/workcrew/internal/backend"
	"github.com/Iron-Ham/workcrew/internal/backend/anthropic"
	"github.com/Iron-Ham/workcrew/internal/backend/openai"
	"github.com/Iron-Ham/workcrew/internal/checkpoint"
	"github.com/Iron-Ham/workcrew/internal/config"
	"github.com/Iron-Ham/workcrew/internal/event"
	"github.com/Iron-Ham/workcrew/internal/invoke"
	"github.com/Iron-Ham/workcrew/internal/logging"
	"github.com/Iron-Ham/workcrew/internal/orchestrator"
	"github.com/Iron-Ham/workcrew/internal/store"
)

// newBackend builds the configured language-model backend.
func newBackend(cfg config.BackendConfig) (backend.Backend, error) {
	switch cfg.Provider {
	case "", "echo":
		return backend.Echo{}, nil
	case "anthropic":
		return anthropic.New(func(o *anthropic.Options) {
			o.APIKey = cfg.APIKey()
			o.BaseURL = cfg.BaseURL
			o.MaxTokens = int64(cfg.MaxTokens)
			o.Timeout = cfg.CallTimeout()
			o.Models = cfg.Models
		}), nil
	case "openai":
		return openai.New(func(o *openai.Options) {
			o.APIKey = cfg.APIKey()
			o.BaseURL = cfg.BaseURL
			o.MaxCompletionTokens = int64(cfg.MaxTokens)
			o.Timeout = cfg.CallTimeout()
			o.Models = cfg.Models
		}), nil
	}
	return nil, fmt.Errorf("unknown backend provider %q", cfg.Provider)
}

// newOrchestrator wires the invoker, the checkpoint gate and the
// orchestrator from cfg. Events are published on sink.
func newOrchestrator(cfg *config.Config, st *store.Store, b backend.Backend, sink event.Sink, logger *logging.Logger) (*orchestrator.Orchestrator, error) {
	inv, err := invoke.New(b, invoke.Policy{
		Tiers:      cfg.Invoke.Tiers,
		MaxRetries: cfg.Invoke.MaxRetries,
		BaseDelay:  cfg.Invoke.BaseDelay(),
		MaxDelay:   cfg.Invoke.MaxDelay(),
	}, invoke.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("invalid invoke policy: %w", err)
	}

	onTimeout, err := checkpoint.ParseTimeoutAction(cfg.Checkpoint.OnTimeout)
	if err != nil {
		return nil, err
	}
	gate := checkpoint.NewGate(sink,
		checkpoint.WithPolicy(checkpoint.Policy{Timeout: cfg.Checkpoint.Timeout(), OnTimeout: onTimeout}),
		checkpoint.WithLogger(logger))

	deny, err := orchestrator.ParseDenyPolicy(cfg.Pipeline.DenyPolicy)
	if err != nil {
		return nil, err
	}

	return orchestrator.New(orchestrator.Config{
		Store:            st,
		Invoker:          inv,
		Gate:             gate,
		Sink:             sink,
		Logger:           logger,
		MaxAssignments:   cfg.Plan.MaxAssignments,
		CapacityTokens:   cfg.Pipeline.CapacityTokens,
		HaltRatio:        cfg.Pipeline.HaltRatio,
		GroupConcurrency: cfg.Pipeline.GroupConcurrency,
		DenyPolicy:       deny,
	})
}
