package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger

	traceMu    sync.RWMutex
	traceAll   bool
	traceAreas = map[string]bool{}
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger
func Init(cfg Config) {
	// Set log level
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Use JSON or console output
	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithResource creates a child logger scoped to one resource instance.
func WithResource(id string) zerolog.Logger {
	return Logger.With().Str("resource", id).Logger()
}

// WithType creates a child logger scoped to one entity type.
func WithType(entityType string) zerolog.Logger {
	return Logger.With().Str("type", entityType).Logger()
}

// LevelFromDebugEnv maps SINKDEBUGLEVEL's values (Trace, Log, Warning,
// Error) to a Level, defaulting to InfoLevel for "Log" or anything
// unrecognized.
func LevelFromDebugEnv(value string) Level {
	switch value {
	case "Trace":
		return DebugLevel
	case "Warning":
		return WarnLevel
	case "Error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// TraceOn enables trace-level output for the given areas. No areas
// enables tracing globally, matching "trace on" with no arguments.
func TraceOn(areas ...string) {
	traceMu.Lock()
	defer traceMu.Unlock()
	if len(areas) == 0 {
		traceAll = true
		return
	}
	for _, a := range areas {
		traceAreas[a] = true
	}
}

// TraceOff disables trace-level output for the given areas, or all
// tracing if no areas are given.
func TraceOff(areas ...string) {
	traceMu.Lock()
	defer traceMu.Unlock()
	if len(areas) == 0 {
		traceAll = false
		traceAreas = map[string]bool{}
		return
	}
	for _, a := range areas {
		delete(traceAreas, a)
	}
}

// Tracing reports whether area is currently being traced.
func Tracing(area string) bool {
	traceMu.RLock()
	defer traceMu.RUnlock()
	return traceAll || traceAreas[area]
}

// Trace logs msg at Debug level for area, but only if that area (or
// tracing globally) has been turned on via TraceOn. This backs the
// CLI's "trace on|off [areas...]" command (SINK_GDB_DEBUG's runtime
// counterpart) without a full tracing subsystem.
func Trace(area, msg string) {
	if Tracing(area) {
		Logger.Debug().Str("area", area).Msg(msg)
	}
}

// Helper functions for common logging patterns
func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}
