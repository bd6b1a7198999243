package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "anon-key")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "https://project.supabase.co", cfg.SupabaseURL)
	require.Equal(t, StoreDriverSQLite, cfg.StoreDriver)
	require.Equal(t, ".maidrobe", cfg.DataDir)
	require.Equal(t, filepath.Join(".maidrobe", "device.key"), cfg.DeviceKeyFile)
	require.Equal(t, filepath.Join(".maidrobe", "maidrobe.db"), cfg.DatabaseFile())
	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "json", cfg.LogFormat)
	require.False(t, cfg.TelemetryEnabled)
	require.Equal(t, 20.0, cfg.TelemetryRate)
	require.Equal(t, 50, cfg.TelemetryBurst)
	require.Empty(t, cfg.MetricsAddr)
	require.Equal(t, 15*time.Second, cfg.RequestTimeout)
	require.Equal(t, 15*time.Second, cfg.ConnectivityProbeInterval)
	require.Equal(t, 10*time.Second, cfg.ShutdownGracePeriod)
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	dir := t.TempDir()
	t.Setenv("MAIDROBE_DATA_DIR", dir)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TELEMETRY_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("TELEMETRY_MAX_EVENTS_PER_SEC", "2.5")
	t.Setenv("AUTH_REQUEST_TIMEOUT", "3s")
	t.Setenv("CONNECTIVITY_PROBE_INTERVAL", "1m")
	t.Setenv("METRICS_ADDR", "127.0.0.1:9464")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	require.Equal(t, filepath.Join(dir, "device.key"), cfg.DeviceKeyFile)
	require.Equal(t, "debug", cfg.LogLevel)
	require.True(t, cfg.TelemetryEnabled)
	require.Equal(t, "collector:4317", cfg.OTLPEndpoint)
	require.Equal(t, 2.5, cfg.TelemetryRate)
	require.Equal(t, 3*time.Second, cfg.RequestTimeout)
	require.Equal(t, time.Minute, cfg.ConnectivityProbeInterval)
	require.Equal(t, "127.0.0.1:9464", cfg.MetricsAddr)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing url",
			env:     map[string]string{"SUPABASE_URL": ""},
			wantErr: "SUPABASE_URL must be set",
		},
		{
			name:    "url without scheme",
			env:     map[string]string{"SUPABASE_URL": "project.supabase.co"},
			wantErr: "SUPABASE_URL must be an http(s) URL",
		},
		{
			name:    "missing anon key",
			env:     map[string]string{"SUPABASE_ANON_KEY": ""},
			wantErr: "SUPABASE_ANON_KEY must be set",
		},
		{
			name:    "unknown store driver",
			env:     map[string]string{"STORE_DRIVER": "postgres"},
			wantErr: "STORE_DRIVER must be sqlite or memory",
		},
		{
			name:    "telemetry without endpoint",
			env:     map[string]string{"TELEMETRY_ENABLED": "true"},
			wantErr: "OTEL_EXPORTER_OTLP_ENDPOINT must be set",
		},
		{
			name:    "non-positive telemetry burst",
			env:     map[string]string{"TELEMETRY_BURST": "0"},
			wantErr: "TELEMETRY_BURST must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadConfig()
			require.Error(t, err)
			require.Contains(t, err.Error(), "config: ")
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
