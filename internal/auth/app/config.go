package app

import (
	"errors"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers selectable with STORE_DRIVER.
const (
	StoreDriverSQLite = "sqlite"
	StoreDriverMemory = "memory"
)

// Config holds application configuration loaded from the environment.
// Session, refresh and rate-limit behaviour is fixed in the service package
// and deliberately not configurable here.
type Config struct {
	SupabaseURL     string `mapstructure:"SUPABASE_URL"`      // Required: project URL, e.g. https://xyz.supabase.co
	SupabaseAnonKey string `mapstructure:"SUPABASE_ANON_KEY"` // Required: anon (publishable) key

	StoreDriver   string `mapstructure:"STORE_DRIVER"`             // sqlite or memory (default: sqlite)
	DataDir       string `mapstructure:"MAIDROBE_DATA_DIR"`        // Device data directory (default: .maidrobe)
	DeviceKeyFile string `mapstructure:"MAIDROBE_DEVICE_KEY_FILE"` // Device secret for sealing secure items (default: <data dir>/device.key)

	PasswordResetRedirectURL string `mapstructure:"PASSWORD_RESET_REDIRECT_URL"` // Optional
	EmailRedirectURL         string `mapstructure:"EMAIL_REDIRECT_URL"`          // Optional: target of verification links

	Env       string `mapstructure:"ENV"`        // Environment (dev, staging, prod) (default: dev)
	LogLevel  string `mapstructure:"LOG_LEVEL"`  // Log level (debug, info, warn, error) (default: info)
	LogFormat string `mapstructure:"LOG_FORMAT"` // Log format (json, text) (default: json)

	TelemetryEnabled bool    `mapstructure:"TELEMETRY_ENABLED"`           // Forward auth events over OTLP (default: false)
	OTLPEndpoint     string  `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"` // Collector host:port
	OTLPInsecure     bool    `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"` // Plaintext gRPC to the collector
	TelemetryRate    float64 `mapstructure:"TELEMETRY_MAX_EVENTS_PER_SEC"`
	TelemetryBurst   int     `mapstructure:"TELEMETRY_BURST"`

	MetricsAddr               string        `mapstructure:"METRICS_ADDR"`                // Status server address; empty disables it
	RequestTimeout            time.Duration `mapstructure:"AUTH_REQUEST_TIMEOUT"`        // Per-request timeout to the Auth API (default: 15s)
	ConnectivityProbeInterval time.Duration `mapstructure:"CONNECTIVITY_PROBE_INTERVAL"` // (default: 15s)
	ShutdownGracePeriod       time.Duration `mapstructure:"SHUTDOWN_GRACE_PERIOD"`       // Graceful shutdown timeout (default: 10s)
}

// LoadConfig reads .env (if present), then builds and validates Config from
// the environment via Viper. Env vars override .env.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore a missing .env

	v.AutomaticEnv()

	v.SetDefault("SUPABASE_URL", "")
	v.SetDefault("SUPABASE_ANON_KEY", "")
	v.SetDefault("STORE_DRIVER", StoreDriverSQLite)
	v.SetDefault("MAIDROBE_DATA_DIR", ".maidrobe")
	v.SetDefault("MAIDROBE_DEVICE_KEY_FILE", "")
	v.SetDefault("PASSWORD_RESET_REDIRECT_URL", "")
	v.SetDefault("EMAIL_REDIRECT_URL", "")
	v.SetDefault("ENV", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("TELEMETRY_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("TELEMETRY_MAX_EVENTS_PER_SEC", 20.0)
	v.SetDefault("TELEMETRY_BURST", 50)
	v.SetDefault("METRICS_ADDR", "")
	v.SetDefault("AUTH_REQUEST_TIMEOUT", "15s")
	v.SetDefault("CONNECTIVITY_PROBE_INTERVAL", "15s")
	v.SetDefault("SHUTDOWN_GRACE_PERIOD", "10s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.SupabaseURL = strings.TrimSpace(c.SupabaseURL)
	if c.SupabaseURL == "" {
		return errors.New("config: SUPABASE_URL must be set")
	}
	u, err := url.Parse(c.SupabaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("config: SUPABASE_URL must be an http(s) URL")
	}
	if c.SupabaseAnonKey == "" {
		return errors.New("config: SUPABASE_ANON_KEY must be set")
	}

	switch c.StoreDriver {
	case StoreDriverSQLite, StoreDriverMemory:
	default:
		return errors.New("config: STORE_DRIVER must be sqlite or memory")
	}
	if c.StoreDriver == StoreDriverSQLite && c.DataDir == "" {
		return errors.New("config: MAIDROBE_DATA_DIR must be set for the sqlite driver")
	}
	if c.DeviceKeyFile == "" {
		c.DeviceKeyFile = filepath.Join(c.DataDir, "device.key")
	}

	if c.TelemetryEnabled && c.OTLPEndpoint == "" {
		return errors.New("config: OTEL_EXPORTER_OTLP_ENDPOINT must be set when TELEMETRY_ENABLED=true")
	}
	if c.TelemetryRate <= 0 || c.TelemetryBurst <= 0 {
		return errors.New("config: TELEMETRY_MAX_EVENTS_PER_SEC and TELEMETRY_BURST must be positive")
	}

	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.ConnectivityProbeInterval <= 0 {
		c.ConnectivityProbeInterval = 15 * time.Second
	}
	if c.ShutdownGracePeriod <= 0 {
		c.ShutdownGracePeriod = 10 * time.Second
	}
	return nil
}

// DatabaseFile is the sqlite file inside the data directory.
func (c *Config) DatabaseFile() string {
	return filepath.Join(c.DataDir, "maidrobe.db")
}
