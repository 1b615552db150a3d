package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger logs text to stderr at level and, when logFile is set,
// appends JSON to logFile at debug detail. Every file record carries the
// run id so it can be matched with audit log lines. The returned cleanup
// closes the file.
func SetupLogger(logFile string, level slog.Level, runID string) (*slog.Logger, func() error) {
	if logFile == "" {
		return slog.New(stderrHandler(os.Stderr, level)), func() error { return nil }
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logger := slog.New(stderrHandler(os.Stderr, level))
		logger.Warn("failed to open log file, using stderr only", "error", err, "file", logFile)
		return logger, func() error { return nil }
	}

	logger := SetupLoggerWithWriters(os.Stderr, file, level, runID)
	return logger, file.Close
}

// SetupLoggerWithWriters creates the fanout logger over custom writers.
func SetupLoggerWithWriters(stderr, file io.Writer, level slog.Level, runID string) *slog.Logger {
	return slog.New(slogmulti.Fanout(stderrHandler(stderr, level), fileHandler(file, level, runID)))
}

func stderrHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}

// fileHandler keeps debug records even when stderr is quieter.
func fileHandler(w io.Writer, level slog.Level, runID string) slog.Handler {
	var h slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     min(level, slog.LevelDebug),
		AddSource: level <= slog.LevelDebug,
	})
	if runID != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("run", runID)})
	}
	return h
}
