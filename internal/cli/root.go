package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/vitalwatch/internal/app"
	"github.com/ogulcanaydogan/vitalwatch/internal/config"
	"github.com/ogulcanaydogan/vitalwatch/pkg/storage"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "vitalwatch",
	Short: "vitalwatch - vital-signs monitoring and alerting",
	Long: `vitalwatch evaluates vital-sign readings against normal ranges and the
subject's own history, raises deduplicated alerts, and notifies the subject
and their emergency contacts. It runs as an HTTP and MQTT service or from
the command line.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.vitalwatch/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	return app.NewLogger(cfg)
}

// initStore opens the database without wiring the rest of the engine, for
// commands that only manage subject settings.
func initStore(cfg *config.Config) (*storage.SQLite, error) {
	store, err := storage.NewSQLite(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	return store, nil
}

// initApp builds a fully wired engine from config.
func initApp(cfg *config.Config) (*app.App, error) {
	return app.Build(cfg, newLogger(cfg))
}
