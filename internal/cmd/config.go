package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/workcrew/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify workcrew configuration",
	Long: `View or modify workcrew configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  workcrew config set backend.provider anthropic
  workcrew config set pipeline.deny_policy pause
  workcrew config set checkpoint.timeout_minutes 30

The resulting configuration is validated before it is written.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/workcrew/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// configView is the YAML shape of Config, keyed like the config file.
func configView(cfg *config.Config) map[string]any {
	return map[string]any{
		"store": map[string]any{
			"root":     cfg.StoreRoot(),
			"location": cfg.Store.Location,
		},
		"invoke": map[string]any{
			"tiers":         cfg.Invoke.Tiers,
			"max_retries":   cfg.Invoke.MaxRetries,
			"base_delay_ms": cfg.Invoke.BaseDelayMs,
			"max_delay_ms":  cfg.Invoke.MaxDelayMs,
		},
		"plan": map[string]any{
			"max_assignments": cfg.Plan.MaxAssignments,
		},
		"pipeline": map[string]any{
			"capacity_tokens":   cfg.Pipeline.CapacityTokens,
			"halt_ratio":        cfg.Pipeline.HaltRatio,
			"group_concurrency": cfg.Pipeline.GroupConcurrency,
			"deny_policy":       cfg.Pipeline.DenyPolicy,
		},
		"checkpoint": map[string]any{
			"timeout_minutes": cfg.Checkpoint.TimeoutMinutes,
			"on_timeout":      cfg.Checkpoint.OnTimeout,
		},
		"backend": map[string]any{
			"provider":        cfg.Backend.Provider,
			"api_key_env":     cfg.Backend.APIKeyEnv,
			"base_url":        cfg.Backend.BaseURL,
			"max_tokens":      cfg.Backend.MaxTokens,
			"timeout_seconds": cfg.Backend.TimeoutSeconds,
			"models":          cfg.Backend.Models,
		},
		"logging": map[string]any{
			"enabled":     cfg.Logging.Enabled,
			"level":       cfg.Logging.Level,
			"max_size_mb": cfg.Logging.MaxSizeMB,
			"max_backups": cfg.Logging.MaxBackups,
			"compress":    cfg.Logging.Compress,
		},
		"metrics": map[string]any{
			"enabled":       cfg.Metrics.Enabled,
			"textfile_path": cfg.Metrics.TextfilePath,
		},
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(configView(cfg)); err != nil {
		return err
	}
	return enc.Close()
}

// parseConfigValue converts a command line value to the type of the key's
// default, so the written file keeps numbers and booleans unquoted.
func parseConfigValue(key, value string) (any, error) {
	switch def := viper.Get(key).(type) {
	case bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return b, nil
	case int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		return n, nil
	case float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected number", key)
		}
		return f, nil
	case []string:
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	case string:
		return value, nil
	case nil:
		return nil, fmt.Errorf("unknown configuration key: %s\nRun 'workcrew config set --help' for examples", key)
	default:
		return nil, fmt.Errorf("%s (%T) cannot be set from the command line", key, def)
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := strings.ToLower(args[0])
	value, err := parseConfigValue(key, args[1])
	if err != nil {
		return err
	}

	viper.Set(key, value)
	if _, err := config.Load(); err != nil {
		return err
	}

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = config.ConfigFile()
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, value)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

const defaultConfigFile = `# workcrew configuration

# Where projects, executions and learnings are stored
store:
  # Directory every storage location must resolve inside
  # (default: $XDG_DATA_HOME/workcrew or ~/.local/share/workcrew)
  # root: /path/to/data
  location: workcrew.json

# Worker invocation fallback chain
invoke:
  # Tiers, highest capability first
  tiers: [large, medium, small]
  # Attempts per worker call
  max_retries: 3
  # Backoff before the second attempt, doubled per attempt
  base_delay_ms: 500
  max_delay_ms: 30000

plan:
  # Largest team accepted
  max_assignments: 50

pipeline:
  # Accumulated-context ceiling in estimated tokens (0 disables tracking)
  capacity_tokens: 150000
  # Share of the ceiling above which a run halts
  halt_ratio: 0.95
  # Concurrent workers within one priority group
  group_concurrency: 4
  # What a denied checkpoint does to the run: fail or pause
  deny_policy: fail

checkpoint:
  # Decision window in minutes (0 waits indefinitely)
  timeout_minutes: 0
  # Applied when the window elapses: notify, approve or deny
  on_timeout: notify

backend:
  # echo, anthropic or openai
  provider: echo
  # Environment variable holding the API key (empty uses the SDK default)
  api_key_env: ""
  max_tokens: 2048
  timeout_seconds: 120
  # Tier to model overrides
  # models:
  #   large: claude-opus-4-1

logging:
  enabled: true
  # debug, info, warn or error
  level: info
  max_size_mb: 10
  max_backups: 3

metrics:
  enabled: true
  # Write a node-exporter textfile after each run
  # textfile_path: /var/lib/node_exporter/workcrew.prom
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'workcrew config set' to modify values", configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfigFile), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize workcrew's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. $HOME/.config/workcrew/config.yaml\n")
	fmt.Fprintf(out, "  3. ./config.yaml (current directory)\n")
	fmt.Fprintln(out, "\nEnvironment variables: WORKCREW_* (e.g., WORKCREW_PIPELINE_DENY_POLICY)")
	return nil
}
