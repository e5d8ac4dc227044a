// Package config provides centralized configuration management for ddrcsv.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Collection CollectionConfig
	Import     ImportConfig
	Git        GitConfig
	Docstore   DocstoreConfig
	Inbox      InboxConfig
	Rate       RateLimitConfig
	Security   SecurityConfig
	History    HistoryConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s).
	// Exports run inside the request, imports run as background jobs.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds the optional import-history database.
// History is disabled when URL is empty.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// CollectionConfig describes where collection repositories live on disk.
type CollectionConfig struct {
	// MediaBase is the directory holding collection repositories (ddr-test-1, ...).
	MediaBase string `env:"DDR_MEDIA_BASE" default:"/var/www/media/ddr"`

	// ExportDir receives CSV exports when no output path is given.
	ExportDir string `env:"DDR_CSV_EXPORT_DIR" default:"/tmp/ddr/csv"`

	// EntityTemplates are copied into every newly created entity directory.
	EntityTemplates []string `env:"DDR_ENTITY_TEMPLATES"`

	// Agent identifies this tool in commit messages.
	Agent string `env:"DDR_IMPORT_AGENT" default:"importers.densho"`

	// VocabFile optionally overrides the built-in vocabulary tables (YAML).
	VocabFile string `env:"DDR_VOCAB_FILE"`

	// Timezone is used for record timestamps.
	Timezone string `env:"DDR_TIMEZONE" default:"America/Los_Angeles"`

	// Charset of incoming CSV files: utf-8, windows-1252, latin1.
	Charset string `env:"DDR_CSV_CHARSET" default:"utf-8"`
}

// ImportConfig holds batch processing settings.
type ImportConfig struct {
	// MaxFileSize is the maximum accepted CSV size in bytes (default: 50MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"52428800"`

	// MaxConcurrent is the maximum number of batches running at once (default: 2)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long to wait for a batch slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds a single background import job (default: 2h)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"2h"`

	// LockFile is created in the collection root while a batch runs.
	LockFile string `env:"IMPORT_LOCK_FILE" default:".ddrcsv.lock"`
}

// GitConfig holds version-control command settings.
type GitConfig struct {
	Binary string `env:"GIT_BINARY" default:"git"`

	// Annex stages file binaries with git-annex instead of git add.
	Annex bool `env:"GIT_ANNEX" default:"true"`

	// Timeout bounds a single git invocation.
	Timeout time.Duration `env:"GIT_TIMEOUT" default:"2m"`
}

// DocstoreConfig holds search index settings.
type DocstoreConfig struct {
	Enabled bool     `env:"DOCSTORE_ENABLED" default:"false"`
	Hosts   []string `env:"DOCSTORE_HOSTS" default:"http://127.0.0.1:9200"`
	Index   string   `env:"DOCSTORE_INDEX" default:"ddrlocal"`
}

// InboxConfig holds drop-folder watcher settings.
type InboxConfig struct {
	Enabled bool   `env:"INBOX_ENABLED" default:"false"`
	Dir     string `env:"INBOX_DIR" default:"/var/spool/ddrcsv"`

	// Settle is how long a file must be quiet before it is imported.
	Settle time.Duration `env:"INBOX_SETTLE" default:"2s"`
	// Retry is the back-off before a batch refused as busy is tried again.
	Retry time.Duration `env:"INBOX_RETRY" default:"30s"`

	GitName string `env:"INBOX_GIT_NAME" default:"ddrcsv inbox"`
	GitMail string `env:"INBOX_GIT_MAIL" default:"ddrcsv@localhost"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// Burst is the token bucket size (default: 20)
	Burst int `env:"RATE_LIMIT_BURST" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	RequireAPIKey bool     `env:"REQUIRE_API_KEY" default:"false"`
	APIKeys       []string `env:"API_KEYS"`
}

// HistoryConfig holds import-history retention settings.
type HistoryConfig struct {
	RetentionDays int           `env:"HISTORY_RETENTION_DAYS" default:"365"`
	CheckInterval time.Duration `env:"HISTORY_CHECK_INTERVAL" default:"24h"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`

	// File, when set, receives log output in addition to stderr.
	File string `env:"LOG_FILE"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// HistoryEnabled reports whether an import-history database is configured.
func (c *Config) HistoryEnabled() bool {
	return c.Database.URL != ""
}

// Location returns the configured timezone, falling back to local time.
func (c *CollectionConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
