// Package observability provides OpenTelemetry-based tracing, metrics, and
// structured logging for the course planner commands.
package observability

import (
	"io"
	"log/slog"
	"time"

	"github.com/Sumatoshi-tech/courseplanner/pkg/config"
)

// AppMode identifies the application execution mode.
type AppMode string

const (
	// ModeCLI is a one-shot command such as list, show or validate.
	ModeCLI AppMode = "cli"
	// ModeMenu is the interactive menu loop.
	ModeMenu AppMode = "menu"
)

const (
	defaultServiceName     = "courseplanner"
	defaultShutdownTimeout = 5 * time.Second
)

// Config holds all observability configuration.
type Config struct {
	// ServiceName is the OTel resource service name.
	ServiceName string

	// ServiceVersion is the semantic version of the running binary.
	ServiceVersion string

	// Environment is the deployment environment (e.g. "production", "local").
	Environment string

	// Mode identifies how the binary was launched.
	Mode AppMode

	// OTLPEndpoint is the OTLP gRPC collector address (e.g. "localhost:4317").
	// Empty disables export; providers become no-op.
	OTLPEndpoint string

	// OTLPInsecure disables TLS for the OTLP gRPC connection.
	OTLPInsecure bool

	// SampleRatio is the trace sampling ratio (0.0 to 1.0).
	SampleRatio float64

	LogLevel slog.Level
	LogJSON  bool

	// LogOutput receives log lines; nil means stderr.
	LogOutput io.Writer

	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults for zero-config startup.
func DefaultConfig() Config {
	return Config{
		ServiceName:     defaultServiceName,
		Mode:            ModeCLI,
		LogLevel:        slog.LevelWarn,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// FromAppConfig derives the observability settings from the loaded application config.
func FromAppConfig(cfg *config.Config, mode AppMode, version string) Config {
	obs := DefaultConfig()
	obs.ServiceVersion = version
	obs.Mode = mode
	obs.Environment = cfg.Telemetry.Environment
	obs.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obs.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obs.SampleRatio = cfg.Telemetry.SampleRatio
	obs.LogLevel = cfg.Logging.SlogLevel()
	obs.LogJSON = cfg.Logging.Format == config.FormatJSON

	if cfg.Telemetry.ShutdownTimeout > 0 {
		obs.ShutdownTimeout = cfg.Telemetry.ShutdownTimeout
	}

	return obs
}
