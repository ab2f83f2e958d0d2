// Package logger configures log/slog for the staffhub service from its
// LoggingConfig: JSON or text output, a minimum level, and a destination of
// stdout, stderr or an append-only file. Credentials never reach the output;
// attributes with sensitive keys are redacted.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"staffhub/internal/models"
	"staffhub/internal/version"
)

// Redacted replaces the value of sensitive attributes.
const Redacted = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"password_hash": {},
	"token":         {},
	"access_token":  {},
	"authorization": {},
	"secret":        {},
}

// Setup builds the service logger. It carries the build version fields on
// every record. The returned io.Closer is nil unless output is a file; the
// caller closes it on shutdown.
func Setup(cfg models.LoggingConfig, ver version.Info) (*slog.Logger, io.Closer, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}

	writer, closer, err := openWriter(cfg.Output, cfg.FilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log output: %w", err)
	}

	return New(writer, cfg.Format, level, ver), closer, nil
}

// New builds a logger on an arbitrary writer. Setup uses it; tests hand it a
// buffer.
func New(w io.Writer, format string, level slog.Leveler, ver version.Info) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redact,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	attrs := []any{
		slog.String("version", ver.Version),
		slog.String("git_commit", ver.GitCommit),
	}
	if ver.InstanceID != "" {
		attrs = append(attrs, slog.String("instance_id", ver.InstanceID))
	}
	return slog.New(handler).With(attrs...)
}

// Component returns a child of the default logger tagged with name.
func Component(name string) *slog.Logger {
	return slog.Default().With(slog.String("component", name))
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, Redacted)
	}
	return a
}

// parseLevel accepts slog's level names in any case, with an optional
// offset such as "info+2".
func parseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", level)
	}
	return l, nil
}

// openWriter resolves the destination. Only a file needs closing.
func openWriter(output, filePath string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(output) {
	case "stderr":
		return os.Stderr, nil, nil
	case "file":
		if filePath == "" {
			return nil, nil, fmt.Errorf("file path is required when output is file")
		}
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", filePath, err)
		}
		return f, f, nil
	default:
		return os.Stdout, nil, nil
	}
}
