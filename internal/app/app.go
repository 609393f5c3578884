package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ogulcanaydogan/vitalwatch/internal/config"
	"github.com/ogulcanaydogan/vitalwatch/internal/ingest"
	"github.com/ogulcanaydogan/vitalwatch/internal/metrics"
	"github.com/ogulcanaydogan/vitalwatch/internal/server"
	"github.com/ogulcanaydogan/vitalwatch/pkg/alerts"
	"github.com/ogulcanaydogan/vitalwatch/pkg/analysis"
	"github.com/ogulcanaydogan/vitalwatch/pkg/engine"
	"github.com/ogulcanaydogan/vitalwatch/pkg/notify"
	"github.com/ogulcanaydogan/vitalwatch/pkg/severity"
	"github.com/ogulcanaydogan/vitalwatch/pkg/storage"
	"github.com/ogulcanaydogan/vitalwatch/pkg/window"
)

// App is a fully wired vitalwatch instance.
type App struct {
	Config  *config.Config
	Store   *storage.SQLite
	Engine  *engine.Engine
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	redis *redis.Client
}

// NewLogger creates a structured logger from config.
func NewLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// Build validates cfg and wires storage, analysis, alerting and notification
// into an engine. The caller must Close the returned App.
func Build(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ranges, err := analysis.LoadRangeTable(cfg.Analysis.RangesFile)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLite(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	a := &App{Config: cfg, Store: store, Metrics: metrics.New(), Logger: logger}
	if err := a.wire(ranges); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ranges analysis.RangeTable) error {
	cfg := a.Config
	an := cfg.Analysis

	windows, err := window.NewManager(an.Window.Policy(), a.Store, an.Window.CacheSize)
	if err != nil {
		return fmt.Errorf("init windows: %w", err)
	}

	detector := analysis.NewAnomalyDetector(
		analysis.NewIsolationForest(an.Anomaly.Trees, an.Anomaly.Seed),
		an.Anomaly.Contamination,
	)
	detector.Lag = an.Anomaly.Lag
	detector.MinPopulation = an.MinPopulation

	trend := analysis.NewTrendAnalyzer(an.Trend.Threshold)
	trend.MinPopulation = an.MinPopulation
	forecast := analysis.NewForecastEngine(an.Forecast.Horizon, an.Forecast.ThresholdPct)
	forecast.MinPopulation = an.MinPopulation

	registry, err := a.senders()
	if err != nil {
		return err
	}

	loc, err := time.LoadLocation(cfg.Notify.Timezone)
	if err != nil {
		return fmt.Errorf("notify timezone: %w", err)
	}
	dispatcher := notify.NewDispatcher(registry, a.Store, cfg.Notify.ChannelTimeout, a.Logger)
	dispatcher.SetDefaultQuietHours(cfg.Notify.QuietHours)
	dispatcher.SetLocation(loc)

	a.Engine, err = engine.New(engine.Options{
		Store:      a.Store,
		Ranges:     ranges,
		Windows:    windows,
		Anomaly:    detector,
		Trend:      trend,
		Forecast:   forecast,
		Classifier: severity.NewClassifier(an.CriticalMetrics...),
		Lifecycle:  alerts.NewLifecycle(a.Store, cfg.Alerts.DedupeBucket, a.Logger),
		Dispatcher: dispatcher,
		Recorder:   a.Metrics,
		Logger:     a.Logger,
	})
	return err
}

// senders registers one sender per configured channel. Each is wrapped in a
// circuit breaker when enabled.
func (a *App) senders() (*notify.Registry, error) {
	n := a.Config.Notify
	var senders []notify.Sender

	switch n.InApp.Driver {
	case "webhook":
		senders = append(senders, notify.NewWebhookSender(n.InApp.Webhook.URL, n.InApp.Webhook.Secret))
	default:
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.Config.Redis.Addr,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
		senders = append(senders, notify.NewRedisInApp(a.redis, n.InApp.ChannelPrefix, n.InApp.InboxSize))
	}
	if n.Email.Enabled {
		senders = append(senders, notify.NewEmailSender(n.Email.SMTPConfig))
	}
	if n.SMS.Enabled {
		senders = append(senders, notify.NewSMSSender(n.SMS.SMSConfig))
	}

	if n.Breaker.Enabled {
		for i, s := range senders {
			senders[i] = notify.WithBreaker(s, n.Breaker)
		}
	}
	return notify.NewRegistry(senders...)
}

// Serve runs the HTTP API, and the MQTT consumer when enabled, until ctx is
// cancelled. It then shuts both down gracefully.
func (a *App) Serve(ctx context.Context) error {
	cfg := a.Config
	apiServer := server.NewServer(a.Engine, a.Metrics.Handler(), a.Logger)

	readTimeout, _ := time.ParseDuration(cfg.Server.ReadTimeout)
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout, _ := time.ParseDuration(cfg.Server.WriteTimeout)
	if writeTimeout == 0 {
		writeTimeout = 30 * time.Second
	}

	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      apiServer.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	if cfg.MQTT.Enabled {
		consumer := ingest.NewConsumer(cfg.MQTT.Config, a.Engine, a.Logger)
		if err := consumer.Start(); err != nil {
			return err
		}
		defer consumer.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("server started", "listen", cfg.Server.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		a.Logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	a.Logger.Info("server stopped")
	return nil
}

// Close releases the store and the Redis connection.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
