// SPDX-FileCopyrightText: 2025 ninotreve
// SPDX-License-Identifier: Apache-2.0

// Package logging provides structured logging for the burst-buffer plugin.
package logging

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger is the interface used throughout the plugin for structured logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithContext(ctx context.Context) Logger
}

type slogLogger struct {
	logger *slog.Logger
}

// NewLogger creates a new logger with the specified configuration.
func NewLogger(config *Config) Logger {
	if config == nil {
		config = DefaultConfig()
	}

	opts := &slog.HandlerOptions{
		Level: config.Level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	switch config.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(config.Output, opts)
	default:
		handler = slog.NewTextHandler(config.Output, opts)
	}

	logger := slog.New(handler).With(
		"component", "burst_buffer",
		"version", config.Version,
	)

	return &slogLogger{logger: logger}
}

func (l *slogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *slogLogger) With(args ...any) Logger {
	return &slogLogger{logger: l.logger.With(args...)}
}

// WithContext attaches job id, token, and user id carried on ctx, if any.
func (l *slogLogger) WithContext(ctx context.Context) Logger {
	attrs := make([]any, 0, 6)

	if jobID := ctx.Value(ctxKeyJobID); jobID != nil {
		attrs = append(attrs, "job_id", jobID)
	}
	if token := ctx.Value(ctxKeyToken); token != nil {
		attrs = append(attrs, "token", token)
	}
	if userID := ctx.Value(ctxKeyUserID); userID != nil {
		attrs = append(attrs, "user_id", userID)
	}
	if corrID := ctx.Value(ctxKeyCorrelationID); corrID != nil {
		attrs = append(attrs, "correlation_id", corrID)
	}

	if len(attrs) > 0 {
		return l.With(attrs...)
	}
	return l
}

type ctxKey int

const (
	ctxKeyJobID ctxKey = iota
	ctxKeyToken
	ctxKeyUserID
	ctxKeyCorrelationID
)

// WithJobID returns a context annotated with a job id for later log lines.
func WithJobID(ctx context.Context, jobID uint32) context.Context {
	return context.WithValue(ctx, ctxKeyJobID, jobID)
}

// WithToken returns a context annotated with a DataWarp session token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxKeyToken, token)
}

// WithUserID returns a context annotated with a submitting user id.
func WithUserID(ctx context.Context, userID uint32) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, userID)
}

// WithCorrelationID returns a context annotated with a per-invocation
// correlation id so concurrent worker-pool runs can be told apart in logs.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyCorrelationID, id)
}

// Config holds logger configuration.
type Config struct {
	Level   slog.Level
	Format  Format
	Output  *os.File
	Version string
}

// Format represents the log output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// DefaultConfig returns a default logger configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:   slog.LevelInfo,
		Format:  FormatText,
		Output:  os.Stdout,
		Version: "unknown",
	}
}
