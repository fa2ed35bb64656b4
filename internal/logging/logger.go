// Package logging configures the zerolog logger shared by the service.
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	log := logging.Component("recommend")
//	log.Warn().Err(err).Str("generator", name).Msg("generator failed")
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error, fatal, panic, disabled.
	Level string

	// Format is json or console.
	Format string

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns the default logging configuration
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: os.Stderr,
	}
}

var (
	root zerolog.Logger
	mu   sync.RWMutex
)

func init() {
	initLogger(DefaultConfig())
}

// Init reconfigures the global logger. Safe to call more than once.
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	initLogger(cfg)
}

// must be called with mu held
func initLogger(cfg Config) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	output := cfg.Output
	if strings.EqualFold(cfg.Format, "console") {
		output = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05"}
	}

	root = zerolog.New(output).With().Timestamp().Logger()
}

// ParseLevel converts a level name to a zerolog.Level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Logger returns the global logger
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Component returns a child logger tagged with the component name
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// Info starts an info level message on the global logger
func Info() *zerolog.Event {
	l := Logger()
	return l.Info()
}

// Warn starts a warn level message on the global logger
func Warn() *zerolog.Event {
	l := Logger()
	return l.Warn()
}

// Error starts an error level message on the global logger
func Error() *zerolog.Event {
	l := Logger()
	return l.Error()
}

// Fatal starts a fatal message on the global logger; the process exits after Msg
func Fatal() *zerolog.Event {
	l := Logger()
	return l.Fatal()
}
