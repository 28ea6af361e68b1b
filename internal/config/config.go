package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete workcrew configuration
type Config struct {
	Store      StoreConfig      `mapstructure:"store"`
	Invoke     InvokeConfig     `mapstructure:"invoke"`
	Plan       PlanConfig       `mapstructure:"plan"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Backend    BackendConfig    `mapstructure:"backend"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// StoreConfig controls where project state is persisted
type StoreConfig struct {
	// Root is the directory every storage location must resolve inside.
	// If empty, defaults to DataDir().
	Root string `mapstructure:"root"`
	// Location is the state document path, relative to Root (default: "workcrew.json")
	Location string `mapstructure:"location"`
}

// InvokeConfig controls the worker invocation fallback chain
type InvokeConfig struct {
	// Tiers is the fallback chain, highest capability first
	Tiers []string `mapstructure:"tiers"`
	// MaxRetries bounds the number of attempts for one worker call (default: 3)
	MaxRetries int `mapstructure:"max_retries"`
	// BaseDelayMs is the backoff before the second attempt, doubled per attempt (default: 500)
	BaseDelayMs int `mapstructure:"base_delay_ms"`
	// MaxDelayMs caps a single backoff sleep (default: 30000)
	MaxDelayMs int `mapstructure:"max_delay_ms"`
}

// BaseDelay returns the base backoff as a time.Duration
func (c *InvokeConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the backoff cap as a time.Duration
func (c *InvokeConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

// PlanConfig controls the task graph builder
type PlanConfig struct {
	// MaxAssignments is the largest team the builder accepts (default: 50)
	MaxAssignments int `mapstructure:"max_assignments"`
}

// PipelineConfig controls the pipeline executor
type PipelineConfig struct {
	// CapacityTokens is the accumulated-context ceiling in estimated tokens
	CapacityTokens int `mapstructure:"capacity_tokens"`
	// HaltRatio is the share of the ceiling above which a run halts (default: 0.95)
	HaltRatio float64 `mapstructure:"halt_ratio"`
	// GroupConcurrency bounds concurrent workers within one priority group.
	// 1 dispatches sequentially (default: 4)
	GroupConcurrency int `mapstructure:"group_concurrency"`
	// DenyPolicy is what a denied checkpoint does to the run: "fail" or "pause"
	DenyPolicy string `mapstructure:"deny_policy"`
}

// CheckpointConfig controls the checkpoint gate timeout policy
type CheckpointConfig struct {
	// TimeoutMinutes is the decision window; 0 waits indefinitely
	TimeoutMinutes int `mapstructure:"timeout_minutes"`
	// OnTimeout is applied when the window elapses: "notify", "approve" or "deny"
	OnTimeout string `mapstructure:"on_timeout"`
}

// Timeout returns the decision window as a time.Duration (0 means disabled)
func (c *CheckpointConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMinutes) * time.Minute
}

// BackendConfig selects the language-model backend
type BackendConfig struct {
	// Provider is "echo", "anthropic" or "openai" (default: "echo")
	Provider string `mapstructure:"provider"`
	// APIKeyEnv names the environment variable holding the API key.
	// Empty uses the provider SDK's default variable.
	APIKeyEnv string `mapstructure:"api_key_env"`
	// BaseURL overrides the provider endpoint
	BaseURL string `mapstructure:"base_url"`
	// MaxTokens caps generated tokens per call (default: 2048)
	MaxTokens int `mapstructure:"max_tokens"`
	// TimeoutSeconds is the per-call timeout; exceeding it is a transient timeout (default: 120)
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// Models maps a tier name to a provider model identifier
	Models map[string]string `mapstructure:"models"`
}

// CallTimeout returns the per-call timeout as a time.Duration
func (c *BackendConfig) CallTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// APIKey resolves the configured API key variable, or "" when unset.
func (c *BackendConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging to file is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated files
	Compress bool `mapstructure:"compress"`
}

// MetricsConfig controls prometheus metrics collection
type MetricsConfig struct {
	// Enabled registers run collectors (default: true)
	Enabled bool `mapstructure:"enabled"`
	// TextfilePath, when set, receives a node-exporter textfile after each run
	TextfilePath string `mapstructure:"textfile_path"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Location: "workcrew.json",
		},
		Invoke: InvokeConfig{
			Tiers:       []string{"large", "medium", "small"},
			MaxRetries:  3,
			BaseDelayMs: 500,
			MaxDelayMs:  30000,
		},
		Plan: PlanConfig{
			MaxAssignments: 50,
		},
		Pipeline: PipelineConfig{
			CapacityTokens:   150000,
			HaltRatio:        0.95,
			GroupConcurrency: 4,
			DenyPolicy:       "fail",
		},
		Checkpoint: CheckpointConfig{
			TimeoutMinutes: 0,
			OnTimeout:      "notify",
		},
		Backend: BackendConfig{
			Provider:       "echo",
			MaxTokens:      2048,
			TimeoutSeconds: 120,
			Models:         map[string]string{},
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Store defaults
	viper.SetDefault("store.root", defaults.Store.Root)
	viper.SetDefault("store.location", defaults.Store.Location)

	// Invoke defaults
	viper.SetDefault("invoke.tiers", defaults.Invoke.Tiers)
	viper.SetDefault("invoke.max_retries", defaults.Invoke.MaxRetries)
	viper.SetDefault("invoke.base_delay_ms", defaults.Invoke.BaseDelayMs)
	viper.SetDefault("invoke.max_delay_ms", defaults.Invoke.MaxDelayMs)

	// Plan defaults
	viper.SetDefault("plan.max_assignments", defaults.Plan.MaxAssignments)

	// Pipeline defaults
	viper.SetDefault("pipeline.capacity_tokens", defaults.Pipeline.CapacityTokens)
	viper.SetDefault("pipeline.halt_ratio", defaults.Pipeline.HaltRatio)
	viper.SetDefault("pipeline.group_concurrency", defaults.Pipeline.GroupConcurrency)
	viper.SetDefault("pipeline.deny_policy", defaults.Pipeline.DenyPolicy)

	// Checkpoint defaults
	viper.SetDefault("checkpoint.timeout_minutes", defaults.Checkpoint.TimeoutMinutes)
	viper.SetDefault("checkpoint.on_timeout", defaults.Checkpoint.OnTimeout)

	// Backend defaults
	viper.SetDefault("backend.provider", defaults.Backend.Provider)
	viper.SetDefault("backend.api_key_env", defaults.Backend.APIKeyEnv)
	viper.SetDefault("backend.base_url", defaults.Backend.BaseURL)
	viper.SetDefault("backend.max_tokens", defaults.Backend.MaxTokens)
	viper.SetDefault("backend.timeout_seconds", defaults.Backend.TimeoutSeconds)
	viper.SetDefault("backend.models", defaults.Backend.Models)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	viper.SetDefault("metrics.textfile_path", defaults.Metrics.TextfilePath)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "workcrew")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".workcrew"
	}
	return filepath.Join(home, ".config", "workcrew")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DataDir returns the default store root and log directory
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "workcrew")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".workcrew"
	}
	return filepath.Join(home, ".local", "share", "workcrew")
}

// StoreRoot returns the configured store root, or DataDir() when unset.
func (c *Config) StoreRoot() string {
	if c.Store.Root != "" {
		return c.Store.Root
	}
	return DataDir()
}

// ValidProviders returns the list of valid backend providers
func ValidProviders() []string {
	return []string{"echo", "anthropic", "openai"}
}

// ValidDenyPolicies returns the list of valid checkpoint deny policies
func ValidDenyPolicies() []string {
	return []string{"fail", "pause"}
}

// ValidTimeoutActions returns the list of valid checkpoint timeout actions
func ValidTimeoutActions() []string {
	return []string{"notify", "approve", "deny"}
}
