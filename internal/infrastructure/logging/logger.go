package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nerrad567/feederpull/internal/infrastructure/config"
)

// statusFileLayout names the per-process status log file.
const statusFileLayout = "feederpull_20060102_150405.log"

// Logger wraps slog.Logger with feederpull-specific functionality.
//
// It provides structured logging with default fields and level-based filtering,
// optionally teeing every record into a timestamped status file.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
	file *os.File
}

// New creates a new Logger with the specified configuration.
//
// It configures:
//   - Output format (JSON for machines, text for operators)
//   - Log level filtering
//   - Default fields (service name, version)
//   - Output destination, plus the status file when enabled
//
// Parameters:
//   - cfg: Logging configuration from config.yaml
//   - version: Application version for default field
//
// Returns:
//   - *Logger: Configured logger ready for use
//   - error: If the status file cannot be created
func New(cfg config.LoggingConfig, version string) (*Logger, error) {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	var file *os.File
	if cfg.File.Enabled {
		f, err := openStatusFile(cfg.File.Dir, time.Now())
		if err != nil {
			return nil, err
		}
		file = f
		output = io.MultiWriter(output, f)
	}

	l := newWithWriter(output, cfg, version)
	l.file = file
	return l, nil
}

// newWithWriter builds a Logger that writes to w.
func newWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "feederpull"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// openStatusFile creates dir if needed and opens a new status file in it.
func openStatusFile(dir string, now time.Time) (*os.File, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating status log directory: %w", err)
	}

	path := filepath.Join(dir, now.Format(statusFileLayout))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) //nolint:gosec // path built from config dir
	if err != nil {
		return nil, fmt.Errorf("opening status log file: %w", err)
	}
	return f, nil
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
//
// The child shares the parent's status file; only the parent should be closed.
//
// Example:
//
//	histLogger := logger.With("component", "historian")
//	histLogger.Info("fetched") // Includes component=historian
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// StatusFile returns the path of the status log file, or "" when file
// logging is disabled.
func (l *Logger) StatusFile() string {
	if l.file == nil {
		return ""
	}
	return l.file.Name()
}

// Close flushes and closes the status file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
