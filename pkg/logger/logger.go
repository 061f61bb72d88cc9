// Package logger provides AShareInsight's structured logging setup: a
// log/slog.Logger backed by a terminal-friendly, color-aware handler in
// development and a plain JSON handler in production, matching
// SPEC_FULL.md §1.1's ambient-stack logging requirement.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/ashareinsight/ashareinsight/pkg/types"
)

// NewDefaultLogger returns a *slog.Logger writing colorized text to stderr
// at the given level, suitable for local development and CLI use.
func NewDefaultLogger(level slog.Level) *slog.Logger {
	return slog.New(NewColorHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewJSONLogger returns a *slog.Logger writing structured JSON to w,
// suitable for production deployments behind a log aggregator.
func NewJSONLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// New builds a logger from the textual format/level configured in
// pkg/config.LogConfig ("color", "json", or "text").
func New(format string, level slog.Level) *slog.Logger {
	switch format {
	case "json":
		return NewJSONLogger(os.Stderr, level)
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	default:
		return NewDefaultLogger(level)
	}
}

// WithRequest returns a logger with request_id (and, if present,
// company_code/doc_id) attached, pulling them out of ctx via the
// pkg/types context keys set by the HTTP/CLI entry points.
func WithRequest(ctx context.Context, log *slog.Logger) *slog.Logger {
	if v, ok := ctx.Value(types.ContextKeyRequestID).(string); ok && v != "" {
		log = log.With("request_id", v)
	}
	if v, ok := ctx.Value(types.ContextKeyCompanyCode).(string); ok && v != "" {
		log = log.With("company_code", v)
	}
	if v, ok := ctx.Value(types.ContextKeyDocID).(string); ok && v != "" {
		log = log.With("doc_id", v)
	}
	return log
}
