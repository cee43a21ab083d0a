// Package logging configures the zerolog logger shared by the photo batch
// client's components.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
// Unknown levels fall back to info.
func Setup(cfg Config) zerolog.Logger {
	level, err := ParseLevel(string(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to a zerolog.Level. "warning" is accepted
// as an alias for warn; the empty string means info.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger creates a logger with the given component name derived from the
// global logger.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: state transitions
//   - Activity start/end, in-flight count
//   - Catalog cache hit/miss, ETag revalidation
//   - Chunk fetches, pick reconciliation changes
//
// Info: completed operations
//   - Batch loaded / saved (photos, updated, added, duration)
//   - Request succeeded after retry
//   - CLI startup, metrics server address
//
// Warn: degraded but continuing
//   - Retry attempts and exhausted retries
//   - Cache errors (fallback to direct source fetch)
//   - Unbalanced activity end, dropped mirror signals
//   - Wait for idle timed out
//
// Error: failed operations
//   - Load or save failed
//   - Request failed after retries
//
// Context Fields:
//   - component: emitting package (gateway, batch-editor, activity, catalog, ...)
//   - operation: gateway operation (fetch, save, list_albums)
//   - request_id: X-Request-ID shared by all attempts of one request
//   - error_class: client, server, rate_limit, network
//   - photos, models, updated, added: batch sizes
//   - in_flight: outstanding network operations
//   - etag, key: catalog cache entry
