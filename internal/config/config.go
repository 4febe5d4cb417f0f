package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/goodtune/utrack/internal/storage"
	"github.com/goodtune/utrack/internal/storage/textlog"
	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Process  ProcessConfig  `mapstructure:"process"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Log      LogConfig      `mapstructure:"log"`
	Title    TitleConfig    `mapstructure:"title"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ProcessConfig defines which process is watched and how often
type ProcessConfig struct {
	Name         string `mapstructure:"name"`
	PollInterval string `mapstructure:"poll_interval"`
}

// TrackingConfig defines session tracking behaviour
type TrackingConfig struct {
	MinSessionDuration string `mapstructure:"min_session_duration"`
	Repeat             bool   `mapstructure:"repeat"` // Wait for the next start after the process exits
}

// LogConfig defines the usage log file
type LogConfig struct {
	Path         string `mapstructure:"path"`
	SessionLabel string `mapstructure:"session_label"`
	TimeLayout   string `mapstructure:"time_layout"`
}

// TitleConfig defines the live terminal title
type TitleConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval string `mapstructure:"interval"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig defines the optional Prometheus endpoint
type MetricsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BindAddress string `mapstructure:"bind_address"`
	Port        int    `mapstructure:"port"`
}

// Load loads configuration from file and environment variables. An empty or
// missing file leaves the defaults in place.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	v.SetEnvPrefix("UTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if !isNotFound(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Config file not found, use defaults and environment variables
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func isNotFound(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	// SetConfigFile with a missing path surfaces the os error instead.
	return errors.Is(err, fs.ErrNotExist)
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Process defaults
	v.SetDefault("process.name", "Unity")
	v.SetDefault("process.poll_interval", "1s")

	// Tracking defaults
	v.SetDefault("tracking.min_session_duration", "0s")
	v.SetDefault("tracking.repeat", false)

	// Usage log defaults
	v.SetDefault("log.path", "UsageLogs.txt")
	v.SetDefault("log.session_label", textlog.DefaultLabel)
	v.SetDefault("log.time_layout", textlog.DefaultTimeLayout)

	// Title defaults
	v.SetDefault("title.enabled", true)
	v.SetDefault("title.interval", "1s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.bind_address", "127.0.0.1")
	v.SetDefault("metrics.port", 9464)
}

// Defaults returns the configuration produced by SetDefaults alone.
func Defaults() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// ValidKeys returns every configuration key the application understands.
func ValidKeys() map[string]bool {
	v := viper.New()
	SetDefaults(v)

	keys := make(map[string]bool)
	for _, key := range v.AllKeys() {
		keys[key] = true
	}
	return keys
}

// validate validates the configuration
func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Process.Name) == "" {
		return fmt.Errorf("process name is required")
	}

	durations := map[string]string{
		"process.poll_interval":         cfg.Process.PollInterval,
		"tracking.min_session_duration": cfg.Tracking.MinSessionDuration,
		"title.interval":                cfg.Title.Interval,
	}
	for key, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		if d < 0 {
			return fmt.Errorf("invalid %s %q: must not be negative", key, value)
		}
	}

	if cfg.Log.Path == "" {
		return fmt.Errorf("log path is required")
	}
	if cfg.Log.SessionLabel == "" {
		cfg.Log.SessionLabel = textlog.DefaultLabel
	}
	if _, err := textlog.DateLayout(cfg.Log.TimeLayout); err != nil {
		return err
	}

	if cfg.Metrics.Enabled && (cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", cfg.Metrics.Port)
	}

	// Ensure the log directory exists
	if err := storage.EnsureParentDir(cfg.Log.Path); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	return nil
}

// ParseDuration parses a duration string with a fallback
func ParseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
