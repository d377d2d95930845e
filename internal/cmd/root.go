package cmd

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/genbridge/internal/config"
	"github.com/Iron-Ham/genbridge/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix namespaces environment overrides, e.g. GENBRIDGE_SERVER_PORT.
const envPrefix = "GENBRIDGE"

var rootCmd = &cobra.Command{
	Use:   "genbridge",
	Short: "HTTP bridge to per-request LLM worker processes",
	Long: `genbridge accepts text-generation requests over HTTP, runs one isolated
worker per request for the selected provider, and maps the worker's result
back onto an HTTP response.`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/genbridge/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	configureViper(viper.GetViper(), viper.GetString("config"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// configureViper applies defaults, search paths and env binding to v.
func configureViper(v *viper.Viper, cfgFile string) {
	// Set defaults first so they're available even without a config file
	config.RegisterDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(config.ConfigDir())
		v.AddConfigPath("$HOME/.config/genbridge")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	// Replace dots with underscores for nested keys in env vars
	// e.g., GENBRIDGE_POOL_MAX_CONCURRENT for pool.max_concurrent
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// loadConfig reads and validates the active configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
