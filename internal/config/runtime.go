package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Metrics exposure modes. Exactly one is active.
const (
	MetricsModeHTTP = "http"
	MetricsModeFile = "file"
)

// Runtime holds the process-wide settings read from the environment at
// startup. Worker-level properties live in Resolver instead.
type Runtime struct {
	ServerURL    string
	AuthKey      string
	AuthSecret   string
	HTTP2Enabled bool
	UpdateV2     bool
	LogLevel     string
	Metrics      MetricsSettings
}

// MetricsSettings selects and parameterizes the metrics exposure mode.
type MetricsSettings struct {
	Mode      string
	HTTPPort  int
	Directory string
	FileName  string
	Interval  time.Duration
}

// ErrServerURLMissing is returned when CONDUCTOR_SERVER_URL is not set.
var ErrServerURLMissing = errors.New("CONDUCTOR_SERVER_URL is required")

// LoadRuntime reads the process-wide environment configuration.
func LoadRuntime() (*Runtime, error) {
	v := viper.New()
	setRuntimeDefaults(v)

	for _, key := range []string{
		"CONDUCTOR_SERVER_URL",
		"CONDUCTOR_AUTH_KEY",
		"CONDUCTOR_AUTH_SECRET",
		"CONDUCTOR_HTTP2_ENABLED",
		"CONDUCTOR_LOG_LEVEL",
		"CONDUCTOR_METRICS_MODE",
		"CONDUCTOR_METRICS_PORT",
		"CONDUCTOR_METRICS_DIRECTORY",
		"CONDUCTOR_METRICS_FILE",
		"CONDUCTOR_METRICS_INTERVAL",
		"taskUpdateV2",
	} {
		_ = v.BindEnv(key, key)
	}

	cfg := &Runtime{
		ServerURL:    v.GetString("CONDUCTOR_SERVER_URL"),
		AuthKey:      v.GetString("CONDUCTOR_AUTH_KEY"),
		AuthSecret:   v.GetString("CONDUCTOR_AUTH_SECRET"),
		HTTP2Enabled: boolOr(v, "CONDUCTOR_HTTP2_ENABLED", true),
		UpdateV2:     boolOr(v, "taskUpdateV2", true),
		LogLevel:     v.GetString("CONDUCTOR_LOG_LEVEL"),
		Metrics: MetricsSettings{
			Mode:      v.GetString("CONDUCTOR_METRICS_MODE"),
			HTTPPort:  v.GetInt("CONDUCTOR_METRICS_PORT"),
			Directory: v.GetString("CONDUCTOR_METRICS_DIRECTORY"),
			FileName:  v.GetString("CONDUCTOR_METRICS_FILE"),
			Interval:  v.GetDuration("CONDUCTOR_METRICS_INTERVAL"),
		},
	}

	if cfg.ServerURL == "" {
		return nil, ErrServerURLMissing
	}

	return cfg, nil
}

func setRuntimeDefaults(v *viper.Viper) {
	v.SetDefault("CONDUCTOR_LOG_LEVEL", "info")
	v.SetDefault("CONDUCTOR_METRICS_MODE", MetricsModeHTTP)
	v.SetDefault("CONDUCTOR_METRICS_PORT", 8000)
	v.SetDefault("CONDUCTOR_METRICS_DIRECTORY", "")
	v.SetDefault("CONDUCTOR_METRICS_FILE", "metrics.prom")
	v.SetDefault("CONDUCTOR_METRICS_INTERVAL", 30*time.Second)
}

func boolOr(v *viper.Viper, key string, fallback bool) bool {
	if !v.IsSet(key) {
		return fallback
	}
	b, err := ParseBool(v.GetString(key))
	if err != nil {
		return fallback
	}
	return b
}
