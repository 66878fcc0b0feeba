package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"vo-performance-bot/internal/alerts"
	"vo-performance-bot/internal/logging"
)

// EnvPrefix namespaces every environment override, e.g. VOPB_TELEGRAM_TOKEN.
const EnvPrefix = "VOPB"

const redacted = "********"

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app" yaml:"app"`
	Logging  logging.Config `mapstructure:"logging" yaml:"logging"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
	Alerts   AlertsConfig   `mapstructure:"alerts" yaml:"alerts"`
	Notify   NotifyConfig   `mapstructure:"notify" yaml:"notify"`
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
	Webhook  WebhookConfig  `mapstructure:"webhook" yaml:"webhook"`
	Ingest   IngestConfig   `mapstructure:"ingest" yaml:"ingest"`
	HTTP     HTTPConfig     `mapstructure:"http" yaml:"http"`
	Export   ExportConfig   `mapstructure:"export" yaml:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// DatabaseConfig selects and tunes the storage backend.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" yaml:"driver"`
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	Path            string        `mapstructure:"path" yaml:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout"`
}

// ScheduleConfig governs the daily fire time.
type ScheduleConfig struct {
	AlertTime       string        `mapstructure:"alert_time" yaml:"alert_time"`
	Timezone        string        `mapstructure:"timezone" yaml:"timezone"`
	Grace           time.Duration `mapstructure:"grace" yaml:"grace"`
	Period          time.Duration `mapstructure:"period" yaml:"period"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key" yaml:"advisory_lock_key"`
}

// AlertsConfig lists the per-horizon cutoffs as fractions.
type AlertsConfig struct {
	Thresholds24h []float64 `mapstructure:"thresholds_24h" yaml:"thresholds_24h"`
	Thresholds30d []float64 `mapstructure:"thresholds_30d" yaml:"thresholds_30d"`
}

// NotifyConfig shapes outbound messages.
type NotifyConfig struct {
	MaxMessageLength int     `mapstructure:"max_message_length" yaml:"max_message_length"`
	DigestDays       int     `mapstructure:"digest_days" yaml:"digest_days"`
	AllowedUserIDs   []int64 `mapstructure:"allowed_user_ids" yaml:"allowed_user_ids"`
	ExtraMessage     string  `mapstructure:"extra_message" yaml:"extra_message"`
	RatePerSecond    float64 `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	Burst            int     `mapstructure:"burst" yaml:"burst"`
}

// TelegramConfig describes the bot transport.
type TelegramConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	Token           string        `mapstructure:"token" yaml:"token"`
	TokenFile       string        `mapstructure:"token_file" yaml:"token_file"`
	APIBase         string        `mapstructure:"api_base" yaml:"api_base"`
	BroadcastChatID int64         `mapstructure:"broadcast_chat_id" yaml:"broadcast_chat_id"`
	CommandChatID   int64         `mapstructure:"command_chat_id" yaml:"command_chat_id"`
	PollTimeout     time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
}

// WebhookConfig describes the optional JSON webhook broadcaster.
type WebhookConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	URL     string        `mapstructure:"url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// IngestConfig points at the operator performance API.
type IngestConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	Network        string        `mapstructure:"network" yaml:"network"`
	PerPage        int           `mapstructure:"per_page" yaml:"per_page"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`
	UTC            bool          `mapstructure:"utc" yaml:"utc"`
}

// HTTPConfig controls the admin API. An empty Addr disables it.
type HTTPConfig struct {
	Addr             string   `mapstructure:"addr" yaml:"addr"`
	AllowedOrigins   []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	MetricsNamespace string   `mapstructure:"metrics_namespace" yaml:"metrics_namespace"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDates int `mapstructure:"max_dates" yaml:"max_dates"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.resolveToken(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "vo-performance-bot")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/vopb.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.busy_timeout", "5s")

	v.SetDefault("schedule.alert_time", "09:00")
	v.SetDefault("schedule.timezone", "")
	v.SetDefault("schedule.grace", "1m")
	v.SetDefault("schedule.period", "24h")
	v.SetDefault("schedule.advisory_lock_key", int64(0x766f7062))

	v.SetDefault("alerts.thresholds_24h", []float64{0.90, 0.95})
	v.SetDefault("alerts.thresholds_30d", []float64{0.99})

	v.SetDefault("notify.max_message_length", 4000)
	v.SetDefault("notify.digest_days", 7)
	v.SetDefault("notify.rate_per_second", 20.0)
	v.SetDefault("notify.burst", 1)

	v.SetDefault("telegram.enabled", true)
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.poll_timeout", "10s")

	v.SetDefault("webhook.enabled", false)
	v.SetDefault("webhook.timeout", "10s")

	v.SetDefault("ingest.base_url", "https://api.ssv.network")
	v.SetDefault("ingest.network", "mainnet")
	v.SetDefault("ingest.per_page", 100)
	v.SetDefault("ingest.request_timeout", "30s")
	v.SetDefault("ingest.user_agent", "")

	v.SetDefault("http.addr", "")
	v.SetDefault("http.metrics_namespace", "vopb")

	v.SetDefault("export.max_dates", 366)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

func (c *Config) resolveToken() error {
	if c.Telegram.Token != "" || c.Telegram.TokenFile == "" {
		return nil
	}
	raw, err := os.ReadFile(c.Telegram.TokenFile)
	if err != nil {
		return fmt.Errorf("read telegram.token_file: %w", err)
	}
	c.Telegram.Token = strings.TrimSpace(string(raw))
	return nil
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "sqlite3", "postgres", "postgresql", "pgx", "memory":
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if c.Notify.MaxMessageLength <= 0 {
		return fmt.Errorf("notify.max_message_length must be greater than zero")
	}
	if c.Notify.DigestDays < 1 {
		return fmt.Errorf("notify.digest_days must be at least 1")
	}
	if c.Notify.RatePerSecond < 0 {
		return fmt.Errorf("notify.rate_per_second cannot be negative")
	}
	if err := validateThresholds("alerts.thresholds_24h", c.Alerts.Thresholds24h); err != nil {
		return err
	}
	if err := validateThresholds("alerts.thresholds_30d", c.Alerts.Thresholds30d); err != nil {
		return err
	}
	if _, err := time.Parse("15:04", c.Schedule.AlertTime); err != nil {
		return fmt.Errorf("schedule.alert_time must be HH:MM: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Schedule.Grace < 0 {
		return fmt.Errorf("schedule.grace cannot be negative")
	}
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token or telegram.token_file is required when telegram is enabled")
	}
	if c.Webhook.Enabled && c.Webhook.URL == "" {
		return fmt.Errorf("webhook.url is required when webhook is enabled")
	}
	if c.Ingest.PerPage <= 0 {
		return fmt.Errorf("ingest.per_page must be greater than zero")
	}
	if c.Export.MaxDates <= 0 {
		return fmt.Errorf("export.max_dates must be greater than zero")
	}
	return nil
}

func validateThresholds(key string, values []float64) error {
	if err := alerts.ThresholdSet(values).Validate(); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// Location resolves the schedule timezone. Empty means the host's local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Schedule.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone: %w", err)
	}
	return loc, nil
}

// Thresholds returns the per-horizon alert cutoffs.
func (c *Config) Thresholds() alerts.Thresholds {
	return alerts.Thresholds{
		Daily:   alerts.ThresholdSet(c.Alerts.Thresholds24h),
		Monthly: alerts.ThresholdSet(c.Alerts.Thresholds30d),
	}
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	out := c
	if out.Telegram.Token != "" {
		out.Telegram.Token = redacted
	}
	if out.Database.DSN != "" {
		out.Database.DSN = redacted
	}
	if out.Webhook.URL != "" {
		out.Webhook.URL = redacted
	}
	out.Notify.AllowedUserIDs = append([]int64(nil), c.Notify.AllowedUserIDs...)
	return out
}

// YAML renders the redacted configuration.
func (c Config) YAML() ([]byte, error) {
	b, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return b, nil
}

// ResolveMaxDates returns either the CLI override or config default.
func (c *Config) ResolveMaxDates(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDates
}
