// Package config provides configuration loading and validation for the course planner.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidSource      = errors.New("unknown catalog source")
	ErrMissingPath        = errors.New("catalog path is required for the file source")
	ErrMissingDSN         = errors.New("catalog dsn is required for the postgres source")
	ErrMissingStoreDir    = errors.New("catalog store_dir is required for the pebble source")
	ErrInvalidDelimiter   = errors.New("catalog delimiter must be a single character")
	ErrInvalidMaxFileSize = errors.New("invalid catalog max_file_size")
	ErrInvalidTimeout     = errors.New("timeout must be positive")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidLogFormat   = errors.New("log format must be json or text")
	ErrInvalidFormat      = errors.New("display format must be table, text, json or yaml")
	ErrInvalidSampleRatio = errors.New("telemetry sample_ratio must be within [0, 1]")
)

// EnvPrefix is prepended to every environment override, e.g. COURSEPLANNER_CATALOG_PATH.
const EnvPrefix = "COURSEPLANNER"

// Config holds all configuration for the course planner.
type Config struct {
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Display   DisplayConfig   `mapstructure:"display"`
}

// CatalogConfig selects where course records are loaded from.
type CatalogConfig struct {
	Source      string        `mapstructure:"source"`
	Path        string        `mapstructure:"path"`
	Delimiter   string        `mapstructure:"delimiter"`
	DSN         string        `mapstructure:"dsn"`
	StoreDir    string        `mapstructure:"store_dir"`
	MaxFileSize string        `mapstructure:"max_file_size"`
	LoadTimeout time.Duration `mapstructure:"load_timeout"`
}

// SnapshotConfig holds index snapshot settings.
type SnapshotConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	OTLPEndpoint    string        `mapstructure:"otlp_endpoint"`
	Environment     string        `mapstructure:"environment"`
	SampleRatio     float64       `mapstructure:"sample_ratio"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	OTLPInsecure    bool          `mapstructure:"otlp_insecure"`
}

// MetricsConfig holds the Prometheus scrape endpoint settings.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// DisplayConfig holds console output settings.
type DisplayConfig struct {
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
}

// DelimiterRune returns the field delimiter of text catalogs.
func (c CatalogConfig) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(c.Delimiter)

	return r
}

// MaxFileSizeBytes returns the parsed catalog size limit.
func (c CatalogConfig) MaxFileSizeBytes() uint64 {
	size, err := humanize.ParseBytes(c.MaxFileSize)
	if err != nil {
		return 0
	}

	return size
}

// SlogLevel returns the configured level, falling back to warn.
func (c LoggingConfig) SlogLevel() slog.Level {
	var level slog.Level

	err := level.UnmarshalText([]byte(c.Level))
	if err != nil {
		return slog.LevelWarn
	}

	return level
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("courseplanner")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("$HOME/.config/courseplanner")
	}

	viperCfg.SetEnvPrefix(EnvPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	// Catalog defaults.
	viperCfg.SetDefault("catalog.source", DefaultCatalogSource)
	viperCfg.SetDefault("catalog.path", DefaultCatalogPath)
	viperCfg.SetDefault("catalog.delimiter", DefaultCatalogDelimiter)
	viperCfg.SetDefault("catalog.dsn", "")
	viperCfg.SetDefault("catalog.store_dir", DefaultCatalogStoreDir)
	viperCfg.SetDefault("catalog.max_file_size", DefaultCatalogMaxFileSize)
	viperCfg.SetDefault("catalog.load_timeout", DefaultCatalogLoadTimeout)

	// Snapshot defaults.
	viperCfg.SetDefault("snapshot.path", DefaultSnapshotPath)

	// Logging defaults.
	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	// Telemetry defaults.
	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.environment", DefaultTelemetryEnvironment)
	viperCfg.SetDefault("telemetry.sample_ratio", DefaultTelemetrySampleRatio)
	viperCfg.SetDefault("telemetry.shutdown_timeout", DefaultShutdownTimeout)

	// Metrics defaults.
	viperCfg.SetDefault("metrics.addr", "")

	// Display defaults.
	viperCfg.SetDefault("display.format", DefaultDisplayFormat)
	viperCfg.SetDefault("display.color", DefaultDisplayColor)
}

// validateConfig validates the configuration.
//
//nolint:cyclop // flat list of independent checks.
func validateConfig(config *Config) error {
	switch config.Catalog.Source {
	case SourceFile:
		if config.Catalog.Path == "" {
			return ErrMissingPath
		}
	case SourcePostgres:
		if config.Catalog.DSN == "" {
			return ErrMissingDSN
		}
	case SourcePebble:
		if config.Catalog.StoreDir == "" {
			return ErrMissingStoreDir
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSource, config.Catalog.Source)
	}

	if utf8.RuneCountInString(config.Catalog.Delimiter) != 1 {
		return fmt.Errorf("%w: %q", ErrInvalidDelimiter, config.Catalog.Delimiter)
	}

	_, sizeErr := humanize.ParseBytes(config.Catalog.MaxFileSize)
	if sizeErr != nil {
		return fmt.Errorf("%w: %q", ErrInvalidMaxFileSize, config.Catalog.MaxFileSize)
	}

	if config.Catalog.LoadTimeout <= 0 {
		return fmt.Errorf("%w: catalog.load_timeout %s", ErrInvalidTimeout, config.Catalog.LoadTimeout)
	}

	var level slog.Level

	levelErr := level.UnmarshalText([]byte(config.Logging.Level))
	if levelErr != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, config.Logging.Level)
	}

	if config.Logging.Format != FormatJSON && config.Logging.Format != FormatText {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	switch config.Display.Format {
	case FormatTable, FormatText, FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, config.Display.Format)
	}

	if config.Telemetry.SampleRatio < 0 || config.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSampleRatio, config.Telemetry.SampleRatio)
	}

	if config.Telemetry.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: telemetry.shutdown_timeout %s", ErrInvalidTimeout, config.Telemetry.ShutdownTimeout)
	}

	return nil
}
