package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ogulcanaydogan/vitalwatch/internal/ingest"
	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
	"github.com/ogulcanaydogan/vitalwatch/pkg/notify"
)

// Config holds all vitalwatch configuration.
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
}

// StorageConfig defines database settings.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig defines the HTTP API settings.
type ServerConfig struct {
	Listen       string `mapstructure:"listen"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AnalysisConfig tunes the range check and the statistical analyses.
type AnalysisConfig struct {
	RangesFile      string         `mapstructure:"ranges_file"`
	MinPopulation   int            `mapstructure:"min_population"`
	CriticalMetrics []string       `mapstructure:"critical_metrics"`
	Window          WindowConfig   `mapstructure:"window"`
	Anomaly         AnomalyConfig  `mapstructure:"anomaly"`
	Trend           TrendConfig    `mapstructure:"trend"`
	Forecast        ForecastConfig `mapstructure:"forecast"`
}

// WindowConfig bounds each subject's history.
type WindowConfig struct {
	Mode      string        `mapstructure:"mode"`
	Size      int           `mapstructure:"size"`
	Span      time.Duration `mapstructure:"span"`
	CacheSize int           `mapstructure:"cache_size"`
}

// Policy returns the window policy described by the config.
func (w WindowConfig) Policy() model.WindowPolicy {
	return model.WindowPolicy{Mode: model.WindowMode(w.Mode), Size: w.Size, Span: w.Span}
}

// AnomalyConfig tunes the outlier model.
type AnomalyConfig struct {
	Contamination float64 `mapstructure:"contamination"`
	Lag           int     `mapstructure:"lag"`
	Trees         int     `mapstructure:"trees"`
	Seed          uint64  `mapstructure:"seed"`
}

// TrendConfig tunes trend detection.
type TrendConfig struct {
	Threshold float64 `mapstructure:"threshold"`
}

// ForecastConfig tunes forecasting.
type ForecastConfig struct {
	Horizon      int     `mapstructure:"horizon"`
	ThresholdPct float64 `mapstructure:"threshold_pct"`
}

// AlertsConfig defines alert deduplication.
type AlertsConfig struct {
	DedupeBucket time.Duration `mapstructure:"dedupe_bucket"`
}

// NotifyConfig defines notification channels and delivery policy.
type NotifyConfig struct {
	ChannelTimeout time.Duration        `mapstructure:"channel_timeout"`
	Timezone       string               `mapstructure:"timezone"`
	QuietHours     model.QuietHours     `mapstructure:"quiet_hours"`
	InApp          InAppConfig          `mapstructure:"in_app"`
	Email          EmailConfig          `mapstructure:"email"`
	SMS            SMSConfig            `mapstructure:"sms"`
	Breaker        notify.BreakerConfig `mapstructure:"breaker"`
}

// InAppConfig selects how in-app notifications are delivered.
type InAppConfig struct {
	Driver        string        `mapstructure:"driver"`
	ChannelPrefix string        `mapstructure:"channel_prefix"`
	InboxSize     int64         `mapstructure:"inbox_size"`
	Webhook       WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig defines the in-app webhook target.
type WebhookConfig struct {
	URL    string `mapstructure:"url"`
	Secret string `mapstructure:"secret"`
}

// EmailConfig defines SMTP delivery.
type EmailConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	notify.SMTPConfig `mapstructure:",squash"`
}

// SMSConfig defines SMS gateway delivery.
type SMSConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	notify.SMSConfig `mapstructure:",squash"`
}

// RedisConfig defines the Redis connection used by the in-app channel.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MQTTConfig defines reading ingestion over MQTT.
type MQTTConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	ingest.Config `mapstructure:",squash"`
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".vitalwatch"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	home, _ := os.UserHomeDir()
	v.SetDefault("storage.path", filepath.Join(home, ".vitalwatch", "vitalwatch.db"))
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("analysis.ranges_file", "configs/ranges.yaml")
	v.SetDefault("analysis.min_population", 10)
	v.SetDefault("analysis.critical_metrics", []string{model.MetricHeartRate, model.MetricOxygenSaturation})
	v.SetDefault("analysis.window.mode", string(model.WindowByCount))
	v.SetDefault("analysis.window.size", 100)
	v.SetDefault("analysis.window.span", "24h")
	v.SetDefault("analysis.window.cache_size", 1024)
	v.SetDefault("analysis.anomaly.contamination", 0.1)
	v.SetDefault("analysis.anomaly.lag", 5)
	v.SetDefault("analysis.anomaly.trees", 100)
	v.SetDefault("analysis.anomaly.seed", 42)
	v.SetDefault("analysis.trend.threshold", 0.1)
	v.SetDefault("analysis.forecast.horizon", 4)
	v.SetDefault("analysis.forecast.threshold_pct", 10.0)

	v.SetDefault("alerts.dedupe_bucket", "1h")

	v.SetDefault("notify.channel_timeout", "10s")
	v.SetDefault("notify.timezone", "UTC")
	v.SetDefault("notify.quiet_hours.start", "")
	v.SetDefault("notify.quiet_hours.end", "")
	v.SetDefault("notify.in_app.driver", "redis")
	v.SetDefault("notify.in_app.channel_prefix", "vitalwatch:")
	v.SetDefault("notify.in_app.inbox_size", 100)
	v.SetDefault("notify.in_app.webhook.url", "")
	v.SetDefault("notify.in_app.webhook.secret", "")
	v.SetDefault("notify.email.enabled", false)
	v.SetDefault("notify.email.host", "")
	v.SetDefault("notify.email.port", 587)
	v.SetDefault("notify.email.username", "")
	v.SetDefault("notify.email.password", "")
	v.SetDefault("notify.email.from", "")
	v.SetDefault("notify.email.use_tls", true)
	v.SetDefault("notify.sms.enabled", false)
	v.SetDefault("notify.sms.base_url", "https://api.twilio.com/2010-04-01")
	v.SetDefault("notify.sms.account_sid", "")
	v.SetDefault("notify.sms.auth_token", "")
	v.SetDefault("notify.sms.from", "")
	v.SetDefault("notify.breaker.enabled", true)
	v.SetDefault("notify.breaker.max_requests", 1)
	v.SetDefault("notify.breaker.interval", "60s")
	v.SetDefault("notify.breaker.timeout", "30s")
	v.SetDefault("notify.breaker.min_requests", 5)
	v.SetDefault("notify.breaker.failure_ratio", 0.6)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "vitalwatch")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", ingest.DefaultTopic)
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.workers", ingest.DefaultWorkers)

	// Environment variables
	v.SetEnvPrefix("VW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Storage.Path == "" {
		add("storage.path is required")
	}
	for _, d := range []struct{ key, val string }{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
	} {
		if _, err := time.ParseDuration(d.val); err != nil {
			add("%s: %v", d.key, err)
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	if f := c.Logging.Format; f != "json" && f != "text" {
		add("logging.format %q is not json or text", f)
	}

	a := c.Analysis
	if a.RangesFile == "" {
		add("analysis.ranges_file is required")
	}
	if a.MinPopulation < 2 {
		add("analysis.min_population must be at least 2, got %d", a.MinPopulation)
	}
	if err := a.Window.Policy().Validate(); err != nil {
		add("analysis.window: %v", err)
	}
	if ct := a.Anomaly.Contamination; ct <= 0 || ct > 0.5 {
		add("analysis.anomaly.contamination must be in (0, 0.5], got %g", ct)
	}
	if a.Anomaly.Lag < 2 {
		add("analysis.anomaly.lag must be at least 2, got %d", a.Anomaly.Lag)
	}
	if a.Anomaly.Trees < 1 {
		add("analysis.anomaly.trees must be positive, got %d", a.Anomaly.Trees)
	}
	if a.Trend.Threshold < 0 {
		add("analysis.trend.threshold must not be negative")
	}
	if a.Forecast.Horizon < 1 {
		add("analysis.forecast.horizon must be positive, got %d", a.Forecast.Horizon)
	}
	if a.Forecast.ThresholdPct < 0 {
		add("analysis.forecast.threshold_pct must not be negative")
	}

	if c.Alerts.DedupeBucket <= 0 {
		add("alerts.dedupe_bucket must be positive")
	}

	n := c.Notify
	if n.ChannelTimeout <= 0 {
		add("notify.channel_timeout must be positive")
	}
	if _, err := time.LoadLocation(n.Timezone); err != nil {
		add("notify.timezone: %v", err)
	}
	if err := n.QuietHours.Validate(); err != nil {
		add("notify.quiet_hours: %v", err)
	}
	switch n.InApp.Driver {
	case "redis":
		if c.Redis.Addr == "" {
			add("redis.addr is required for the redis in-app driver")
		}
	case "webhook":
		if n.InApp.Webhook.URL == "" {
			add("notify.in_app.webhook.url is required for the webhook in-app driver")
		}
	default:
		add("notify.in_app.driver %q is not redis or webhook", n.InApp.Driver)
	}
	if n.Email.Enabled {
		if n.Email.Host == "" || n.Email.Port <= 0 || n.Email.From == "" {
			add("notify.email requires host, port and from when enabled")
		}
	}
	if n.SMS.Enabled {
		if n.SMS.BaseURL == "" || n.SMS.AccountSID == "" || n.SMS.From == "" {
			add("notify.sms requires base_url, account_sid and from when enabled")
		}
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		add("mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.QoS > 2 {
		add("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	if c.MQTT.Workers < 0 {
		add("mqtt.workers must not be negative, got %d", c.MQTT.Workers)
	}

	return errors.Join(errs...)
}
