package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "invoke.max_retries")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateInvoke()...)
	errors = append(errors, c.validatePlan()...)
	errors = append(errors, c.validatePipeline()...)
	errors = append(errors, c.validateCheckpoint()...)
	errors = append(errors, c.validateBackend()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateStore() []ValidationError {
	var errors []ValidationError

	if c.Store.Location == "" {
		errors = append(errors, ValidationError{
			Field:   "store.location",
			Value:   c.Store.Location,
			Message: "must not be empty",
		})
	} else if strings.Contains(filepath.ToSlash(c.Store.Location), "..") {
		errors = append(errors, ValidationError{
			Field:   "store.location",
			Value:   c.Store.Location,
			Message: "must not contain '..'",
		})
	}

	return errors
}

func (c *Config) validateInvoke() []ValidationError {
	var errors []ValidationError

	if len(c.Invoke.Tiers) == 0 {
		errors = append(errors, ValidationError{
			Field:   "invoke.tiers",
			Value:   c.Invoke.Tiers,
			Message: "must list at least one tier",
		})
	}
	seen := make(map[string]bool, len(c.Invoke.Tiers))
	for _, tier := range c.Invoke.Tiers {
		if strings.TrimSpace(tier) == "" {
			errors = append(errors, ValidationError{
				Field:   "invoke.tiers",
				Value:   tier,
				Message: "tier names must not be empty",
			})
			continue
		}
		if seen[tier] {
			errors = append(errors, ValidationError{
				Field:   "invoke.tiers",
				Value:   tier,
				Message: "duplicate tier",
			})
		}
		seen[tier] = true
	}

	if c.Invoke.MaxRetries < 1 {
		errors = append(errors, ValidationError{
			Field:   "invoke.max_retries",
			Value:   c.Invoke.MaxRetries,
			Message: "must be at least 1",
		})
	}
	if c.Invoke.BaseDelayMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "invoke.base_delay_ms",
			Value:   c.Invoke.BaseDelayMs,
			Message: "must be non-negative",
		})
	}
	if c.Invoke.MaxDelayMs < c.Invoke.BaseDelayMs {
		errors = append(errors, ValidationError{
			Field:   "invoke.max_delay_ms",
			Value:   c.Invoke.MaxDelayMs,
			Message: "must be at least base_delay_ms",
		})
	}

	return errors
}

func (c *Config) validatePlan() []ValidationError {
	var errors []ValidationError

	if c.Plan.MaxAssignments < 1 {
		errors = append(errors, ValidationError{
			Field:   "plan.max_assignments",
			Value:   c.Plan.MaxAssignments,
			Message: "must be at least 1",
		})
	}

	return errors
}

func (c *Config) validatePipeline() []ValidationError {
	var errors []ValidationError

	if c.Pipeline.CapacityTokens < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.capacity_tokens",
			Value:   c.Pipeline.CapacityTokens,
			Message: "must be positive",
		})
	}
	if c.Pipeline.HaltRatio <= 0 || c.Pipeline.HaltRatio > 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.halt_ratio",
			Value:   c.Pipeline.HaltRatio,
			Message: "must be in (0, 1]",
		})
	}
	if c.Pipeline.GroupConcurrency < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.group_concurrency",
			Value:   c.Pipeline.GroupConcurrency,
			Message: "must be at least 1",
		})
	}
	if !slices.Contains(ValidDenyPolicies(), c.Pipeline.DenyPolicy) {
		errors = append(errors, ValidationError{
			Field:   "pipeline.deny_policy",
			Value:   c.Pipeline.DenyPolicy,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidDenyPolicies(), ", ")),
		})
	}

	return errors
}

func (c *Config) validateCheckpoint() []ValidationError {
	var errors []ValidationError

	if c.Checkpoint.TimeoutMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "checkpoint.timeout_minutes",
			Value:   c.Checkpoint.TimeoutMinutes,
			Message: "must be non-negative (0 waits indefinitely)",
		})
	}
	if !slices.Contains(ValidTimeoutActions(), c.Checkpoint.OnTimeout) {
		errors = append(errors, ValidationError{
			Field:   "checkpoint.on_timeout",
			Value:   c.Checkpoint.OnTimeout,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidTimeoutActions(), ", ")),
		})
	}

	return errors
}

func (c *Config) validateBackend() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidProviders(), c.Backend.Provider) {
		errors = append(errors, ValidationError{
			Field:   "backend.provider",
			Value:   c.Backend.Provider,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidProviders(), ", ")),
		})
	}
	if c.Backend.MaxTokens < 1 {
		errors = append(errors, ValidationError{
			Field:   "backend.max_tokens",
			Value:   c.Backend.MaxTokens,
			Message: "must be positive",
		})
	}
	if c.Backend.TimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "backend.timeout_seconds",
			Value:   c.Backend.TimeoutSeconds,
			Message: "must be non-negative",
		})
	}
	for tier := range c.Backend.Models {
		if !slices.Contains(c.Invoke.Tiers, tier) {
			errors = append(errors, ValidationError{
				Field:   "backend.models",
				Value:   tier,
				Message: "maps a tier that is not in invoke.tiers",
			})
		}
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
