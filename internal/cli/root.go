package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/corroborate/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var version = "0.1.0"

var (
	cfgFile string
	verbose bool
	noCache bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "corroborate",
	Short: "Corroborate - publish a news fact only when two independent sources report it",
	Long: `Corroborate polls news sources, reduces every headline to a neutral fact
with an LLM, and publishes a fact only once two sources with unrelated
ownership report the same event.

Unconfirmed facts wait in a pending queue until a second, independent
source confirms them or they expire. Facts already published today are
never republished, even when reworded.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of Corroborate.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "corroborate v%s\n", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.corroborate/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "disable the oracle response cache")
	rootCmd.PersistentFlags().String("sources", "", "sources file (overrides sources_file)")
	rootCmd.PersistentFlags().String("data-dir", "", "state directory (overrides store.data_dir)")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("sources_file", rootCmd.PersistentFlags().Lookup("sources"))
	_ = viper.BindPFlag("store.data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	registerDefaults()

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(filepath.Join(home, ".corroborate"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match CORROBORATE_*, with nested
	// keys joined by underscores (CORROBORATE_THRESHOLDS_MIN_CONFIDENCE)
	viper.SetEnvPrefix("CORROBORATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// keys without a YAML default that must still be reachable from the environment
var envOnlyKeys = []string{
	"llm.api_key",
	"llm.base_url",
	"store.sqlite_path",
	"http.http_proxy",
	"http.https_proxy",
	"alert.webhook_url",
	"alert.twilio_from",
	"alert.twilio_to",
}

// registerDefaults makes every configuration key known to viper, so
// environment variables override keys absent from the config file
func registerDefaults() {
	data, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return
	}
	setDefaults("", tree)

	for _, key := range envOnlyKeys {
		viper.SetDefault(key, "")
	}
}

func setDefaults(prefix string, tree map[string]any) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			setDefaults(key, sub)
			continue
		}
		viper.SetDefault(key, v)
	}
}

// loadConfig merges defaults, config file, environment and flags
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}

	if verbose {
		cfg.Log.Level = "debug"
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if cfg.Cache.Enabled && cfg.Cache.Dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Cache.Dir = filepath.Join(home, ".corroborate", "cache")
		}
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *model.Config) error {
	switch {
	case cfg.Thresholds.MinConfidence < 0 || cfg.Thresholds.MinConfidence > 100:
		return fmt.Errorf("thresholds.min_confidence must be between 0 and 100, got %d", cfg.Thresholds.MinConfidence)
	case cfg.Thresholds.Overlap < 0 || cfg.Thresholds.Overlap > 1:
		return fmt.Errorf("thresholds.overlap must be between 0 and 1, got %v", cfg.Thresholds.Overlap)
	case cfg.Thresholds.QueueTimeoutHours <= 0:
		return fmt.Errorf("thresholds.queue_timeout_hours must be positive")
	case cfg.Timing.ScrapeIntervalMinutes <= 0:
		return fmt.Errorf("timing.scrape_interval_minutes must be positive")
	case cfg.UnrelatedRules.MaxSharedTopHolders < 0:
		return fmt.Errorf("unrelated_rules.max_shared_top_holders must not be negative")
	}
	return nil
}
