package logging

import (
	"log/slog"
	"os"
)

// Init installs the default slog logger. The configured level wins; when it
// is empty the LOG_LEVEL environment variable is consulted, falling back to
// info.
func Init(configured string) {
	level := slog.LevelInfo

	name := configured
	if name == "" {
		name = os.Getenv("LOG_LEVEL")
	}
	switch name {
	case "dev", "development", "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error", "production", "prod":
		level = slog.LevelError
	}

	logger := slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
}
