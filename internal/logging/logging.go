// Package logging wraps slog for askd: a rotating file sink via
// lumberjack, optional JSON or text encoding, and the env-tunable
// knobs a long-running daemon needs for log hygiene.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps an *slog.Logger with the small set of level methods the
// engine and its dispatchers call.
type Logger struct {
	logger *slog.Logger
}

func (l Logger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l Logger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// With returns a Logger that prepends args to every record.
func (l Logger) With(args ...any) Logger {
	return Logger{logger: l.logger.With(args...)}
}

// Slog exposes the underlying *slog.Logger, for code that wants to
// install it as the process default via slog.SetDefault.
func (l Logger) Slog() *slog.Logger { return l.logger }

// ParseLevel converts a level name to slog.Level, defaulting to Info
// on anything unrecognized.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupFile builds a Logger that writes rotated log files at logPath,
// using lumberjack for rotation. It returns the lumberjack.Logger too
// so the caller can Close it on shutdown. Rotation knobs are read from
// ASK_LOG_MAX_SIZE_MB / ASK_LOG_MAX_BACKUPS / ASK_LOG_MAX_AGE_DAYS /
// ASK_LOG_COMPRESS, each optional.
func SetupFile(logPath string, jsonFormat bool, level slog.Level) (*lumberjack.Logger, Logger) {
	lj := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    envInt("ASK_LOG_MAX_SIZE_MB", 50),
		MaxBackups: envInt("ASK_LOG_MAX_BACKUPS", 7),
		MaxAge:     envInt("ASK_LOG_MAX_AGE_DAYS", 30),
		Compress:   envBool("ASK_LOG_COMPRESS", true),
	}

	return lj, Logger{logger: slog.New(newHandler(lj, jsonFormat, level))}
}

// SetupStderr builds a Logger that writes to stderr only, for
// foreground (non-daemonized) runs.
func SetupStderr(jsonFormat bool, level slog.Level) Logger {
	return Logger{logger: slog.New(newHandler(os.Stderr, jsonFormat, level))}
}

// Discard builds a Logger that drops everything, for code paths that
// need a Logger but produce no output a caller wants to see.
func Discard() Logger {
	return Logger{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// NewForWriter builds a text-format Logger over an arbitrary writer,
// primarily so tests can capture and assert on log output.
func NewForWriter(w io.Writer) Logger {
	return Logger{logger: slog.New(slog.NewTextHandler(w, nil))}
}

func newHandler(w io.Writer, jsonFormat bool, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if jsonFormat {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func envInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
