// Package logger wraps slog with the handful of structured log events the
// application emits on hot paths.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Logger embeds slog.Logger so call sites keep the standard Info/Warn/Error
// methods alongside the typed helpers below.
type Logger struct {
	*slog.Logger
}

// New builds the process logger. Development gets human-readable text at
// debug level; everything else gets JSON at info level.
func New(env string) *Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var handler slog.Handler
	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// HTTPRequest logs one served request.
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// DeliveryFailure logs a follow-up message that could not be delivered.
func (l *Logger) DeliveryFailure(leadID, sequenceID string, stage int, err error) {
	l.Error("delivery_failure",
		slog.String("lead_id", leadID),
		slog.String("sequence_id", sequenceID),
		slog.Int("stage", stage),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs a throttled request.
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
