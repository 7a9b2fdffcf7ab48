package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"visitor-router/internal/config"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "visitor-router",
	Short: "Routes visitors to the best-paying eligible target",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is configs/application.yaml)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "loglevel", "l", "", "log level override: debug, info, warn, error")
}

// loadConfig reads configuration and sets up logging for a subcommand.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}
	config.SetupLogging(cfg.Server.LogLevel, cfg.Server.LogFormat)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
