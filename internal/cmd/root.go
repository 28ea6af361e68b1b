package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/workcrew/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "workcrew",
	Short: "Multi-agent team orchestrator",
	Long: `Workcrew runs projects made of ordered teams of AI workers.

Each team dispatches its workers in priority groups, optionally pauses at a
human checkpoint, and hands its contribution to the next team through a
shared context. Runs, checkpoints and learnings are persisted so a failed or
paused run can be resumed.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/workcrew/config.yaml)")
	rootCmd.PersistentFlags().String("root", "", "store root directory (default is $HOME/.local/share/workcrew)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("store.root", rootCmd.PersistentFlags().Lookup("root"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/workcrew")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("WORKCREW")
	// Replace dots with underscores for nested keys in env vars
	// e.g., WORKCREW_PIPELINE_DENY_POLICY for pipeline.deny_policy
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
