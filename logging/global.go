package logging

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var (
	current atomic.Pointer[slog.Logger]
	closer  io.Closer = nopCloser{}

	fallback = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
)

// Init installs the logger built from opts as the package and slog default.
// A file logger failure is reported but leaves console logging in place.
func Init(opts Options) error {
	logger, c, err := Setup(opts)
	Set(logger)
	closer = c
	return err
}

// Set installs logger as the package and slog default.
func Set(logger *slog.Logger) {
	current.Store(logger)
	slog.SetDefault(logger)
}

// Close releases the log files opened by Init.
func Close() error {
	c := closer
	closer = nopCloser{}
	return c.Close()
}

// Logger returns the installed logger, or a stderr logger before Init.
func Logger() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	return fallback
}

func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}
