package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/machineid-io/machineid-core/internal/infrastructure/config"
)

// Logger is the structured logger every MachineID component shares.
// It embeds slog.Logger, so the usual Info/Warn/Error methods are
// available directly and every record carries the service and
// version fields. Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// levelNames maps config strings to slog levels. Unknown names fall
// back to info rather than failing startup.
var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// New builds a logger from config: JSON or text format, stdout or
// stderr, filtered at the configured level.
func New(cfg config.LoggingConfig, version string) *Logger {
	return build(destination(cfg.Output), cfg, version)
}

// build assembles the handler chain onto an arbitrary writer.
func build(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "machineid"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// destination resolves the configured output name. Anything other
// than stderr means stdout.
func destination(name string) io.Writer {
	if strings.EqualFold(name, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// parseLevel converts a config string to a slog.Level, defaulting to
// info for anything unrecognised.
func parseLevel(name string) slog.Level {
	if lvl, ok := levelNames[strings.ToLower(name)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// With returns a child logger carrying extra default attributes.
//
//	apiLog := logger.With("component", "api")
//	apiLog.Info("listening") // includes component=api
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a stdout JSON logger at info level, for the window
// between process start and config load.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
