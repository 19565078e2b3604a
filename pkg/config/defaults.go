package config

// Catalog source kinds.
const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
	SourcePebble   = "pebble"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
	FormatText  = "text"
)

// Catalog defaults.
const (
	DefaultCatalogSource      = SourceFile
	DefaultCatalogPath        = "courses.csv"
	DefaultCatalogDelimiter   = ","
	DefaultCatalogStoreDir    = ".courseplanner/store"
	DefaultCatalogMaxFileSize = "16MB"
	DefaultCatalogLoadTimeout = "30s"
)

// Snapshot defaults.
const (
	DefaultSnapshotPath = ".courseplanner/index.cpix"
)

// Logging defaults.
const (
	DefaultLogLevel  = "warn"
	DefaultLogFormat = FormatText
)

// Telemetry defaults.
const (
	DefaultTelemetryEnvironment = "local"
	DefaultTelemetrySampleRatio = 1.0
	DefaultShutdownTimeout      = "5s"
)

// Display defaults.
const (
	DefaultDisplayFormat = FormatTable
	DefaultDisplayColor  = true
)
