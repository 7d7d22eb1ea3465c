package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/newthinker/stonks/internal/config"
	"github.com/newthinker/stonks/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "stonks",
	Short: "stonks - portfolio sync and signal analysis",
	Long: `stonks syncs brokerage positions, enriches them with market data and
detects technical signals across the holdings. It serves the results over
a read-only HTTP API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads .env, the config file and the logger shared by all commands.
func setup() (*config.Config, *zap.Logger, error) {
	_ = godotenv.Load()

	cfg := config.Defaults()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return nil, nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation failed: %w", err)
	}

	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	log, err := logger.NewWithLevel(debug || cfg.Log.Development, level)
	if err != nil {
		return nil, nil, err
	}
	if cfgFile == "" {
		log.Warn("no config file specified, using defaults")
	}
	return cfg, log, nil
}
