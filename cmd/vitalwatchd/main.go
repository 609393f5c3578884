package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/ogulcanaydogan/vitalwatch/internal/app"
	"github.com/ogulcanaydogan/vitalwatch/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgFile := flag.StringP("config", "c", "", "config file (default: ~/.vitalwatch/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := app.NewLogger(cfg)

	a, err := app.Build(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("vitalwatchd starting",
		"listen", cfg.Server.Listen,
		"mqtt", cfg.MQTT.Enabled,
		"in_app", cfg.Notify.InApp.Driver,
	)
	return a.Serve(ctx)
}
