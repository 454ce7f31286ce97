// Package log provides structured logging utilities for the GOMC mining core.
// It wraps the standard library's slog package with additional convenience methods.
package log

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with additional context and convenience methods
type Logger struct {
	*slog.Logger
	service string
	version string
}

// New creates a new logger with the specified configuration
func New(service, version, level, format string) *Logger {
	var handler slog.Handler

	// Parse log level
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	// Create handler based on format
	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	// Create base logger with service context
	baseLogger := slog.New(handler).With(
		"service", service,
		"version", version,
	)

	return &Logger{
		Logger:  baseLogger,
		service: service,
		version: version,
	}
}

// WithContext returns a logger with additional context fields
func (l *Logger) WithContext(ctx context.Context) *Logger {
	logger := l.Logger

	if reqID := ctx.Value("request_id"); reqID != nil {
		logger = logger.With("request_id", reqID)
	}

	return &Logger{
		Logger:  logger,
		service: l.service,
		version: l.version,
	}
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger:  l.With(fields...),
		service: l.service,
		version: l.version,
	}
}

// WithComponent returns a logger with a component field
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

// WithLane returns a logger with lane-specific fields
func (l *Logger) WithLane(laneID int) *Logger {
	return l.WithFields("lane_id", laneID)
}

// WithJob returns a logger with job-specific fields
func (l *Logger) WithJob(jobID string, generation uint64) *Logger {
	return l.WithFields("job_id", jobID, "job_generation", generation)
}

// WithShare returns a logger with share-specific fields
func (l *Logger) WithShare(nonce, extranonce uint32, laneID int) *Logger {
	return l.WithFields("nonce", nonce, "extranonce", extranonce, "lane_id", laneID)
}

// WithError returns a logger with error context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithFields("error", err.Error())
}

// Performance logging helpers

// LogDuration logs the duration of an operation
func (l *Logger) LogDuration(operation string, duration int64) {
	l.Info("operation completed",
		"operation", operation,
		"duration_ns", duration,
		"duration_ms", float64(duration)/1e6,
	)
}

// LogHashrate logs a hashrate measurement for a lane
func (l *Logger) LogHashrate(laneID int, hashes uint64, hashrate float64, shares uint64) {
	l.Info("lane progress",
		"lane_id", laneID,
		"hashes_computed", hashes,
		"hashrate_hs", hashrate,
		"shares_found", shares,
	)
}

// Mining-specific logging helpers

// LogShareFound logs a discovered share
func (l *Logger) LogShareFound(laneID int, nonce, extranonce uint32, digest string) {
	l.Info("share found",
		"lane_id", laneID,
		"nonce", nonce,
		"extranonce", extranonce,
		"digest", digest,
	)
}

// LogJobReplaced logs a job replacement event
func (l *Logger) LogJobReplaced(jobID string, generation uint64, nbits uint32) {
	l.Info("job replaced",
		"job_id", jobID,
		"job_generation", generation,
		"nbits", nbits,
	)
}

// LogLaneStateChange logs a lane state transition
func (l *Logger) LogLaneStateChange(laneID int, from, to string) {
	l.Debug("lane state change",
		"lane_id", laneID,
		"from", from,
		"to", to,
	)
}

// LogShareSubmission logs a share hand-off to the submission pipeline
func (l *Logger) LogShareSubmission(laneID int, nonce uint32, status string) {
	l.Info("share submission",
		"lane_id", laneID,
		"nonce", nonce,
		"status", status,
	)
}
