package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/dnacommunity/backend/internal/config"
	"github.com/dnacommunity/backend/internal/telemetry"
)

// New creates the process logger and installs it as the slog default.
// When telemetry is enabled records are fanned out to OpenTelemetry too.
func New(cfg *config.Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}

	var consoleHandler slog.Handler
	if cfg.Server.Environment == config.EnvironmentProduction {
		consoleHandler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     slog.LevelInfo,
			AddSource: true,
		})
	} else {
		consoleHandler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	handler := consoleHandler
	if cfg.Telemetry.Enabled && cfg.Telemetry.ExporterURL != "" {
		otelHandler := telemetry.NewOTelHandler(cfg.Telemetry.ServiceName, &slog.HandlerOptions{
			Level:     slog.LevelInfo,
			AddSource: true,
		})
		handler = NewMultiHandler(otelHandler, consoleHandler)
	}

	logger := slog.New(handler).With(
		"service", cfg.Telemetry.ServiceName,
		"version", cfg.Telemetry.ServiceVersion,
		"environment", string(cfg.Server.Environment),
	)

	slog.SetDefault(logger)

	return logger
}

// MultiHandler sends logs to multiple handlers
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler creates a new multi-handler
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

// Enabled reports whether any handler handles records at the given level
func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle handles the Record by sending it to all handlers
func (h *MultiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, record.Level) {
			// One failing sink must not silence the others.
			_ = handler.Handle(ctx, record.Clone())
		}
	}
	return nil
}

// WithAttrs returns a new MultiHandler with the given attributes
func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		newHandlers = append(newHandlers, handler.WithAttrs(attrs))
	}
	return &MultiHandler{handlers: newHandlers}
}

// WithGroup returns a new MultiHandler with the given group
func (h *MultiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, 0, len(h.handlers))
	for _, handler := range h.handlers {
		newHandlers = append(newHandlers, handler.WithGroup(name))
	}
	return &MultiHandler{handlers: newHandlers}
}

// Discard returns a logger that drops everything (useful for testing).
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// SilenceLogger redirects the default logger to w, errors only.
func SilenceLogger(w io.Writer) {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slog.LevelError,
	})
	slog.SetDefault(slog.New(handler))
}
