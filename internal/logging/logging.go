// Package logging builds the agent's JSON loggers and the attribute helpers
// shared by every component.
package logging

import (
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
)

// ParseLevel maps debug, info, warn (or warning) and error to a slog level.
// Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// NewLogger writes JSON records at level or above to stdout.
func NewLogger(level string) *slog.Logger {
	return NewLoggerTo(os.Stdout, level)
}

func NewLoggerTo(w io.Writer, level string) *slog.Logger {
	lvl := ParseLevel(level)
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}))
}

func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	return logger.With("request_id", requestID)
}

func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

func WithAssetID(logger *slog.Logger, assetID string) *slog.Logger {
	return logger.With("asset_id", assetID)
}

// WithGeneration tags records with the engine load generation they belong to.
func WithGeneration(logger *slog.Logger, gen uint64) *slog.Logger {
	return logger.With("generation", gen)
}

func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrDiscard returns logger, or a discarding logger when it is nil.
func OrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}

// SanitizeToken keeps the first and last 4 characters of a token. Tokens of
// 8 characters or fewer are fully masked.
func SanitizeToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// SanitizePath replaces the home directory prefix with ~.
func SanitizePath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}

// SanitizeSource masks an asset source for logging. Remote URLs lose their
// credentials and query string; local paths go through SanitizePath.
func SanitizeSource(source string) string {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return SanitizePath(source)
	}
	switch u.Scheme {
	case "file":
		return "file://" + SanitizePath(u.Path)
	case "http", "https":
		u.User = nil
		u.RawQuery = ""
		u.Fragment = ""
		return u.String()
	}
	return source
}
