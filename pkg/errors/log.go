package errors

import (
	"context"
	"log/slog"
)

// LogHandler is an ErrorHandler that writes through slog.
type LogHandler struct {
	// Logger receives the records. Nil means slog.Default().
	Logger *slog.Logger
	// Verbose adds stack traces to the records.
	Verbose bool
}

func (h *LogHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// HandleError logs a BeamError. Plugin errors are warnings, the rest errors.
func (h *LogHandler) HandleError(err *BeamError) {
	if err == nil {
		return
	}
	attrs := []any{"op", err.Op, "kind", err.Kind.String()}
	if err.Component != "" {
		attrs = append(attrs, "component", err.Component)
	}
	if h.Verbose && err.StackTrace != "" {
		attrs = append(attrs, "stack", err.StackTrace)
	}
	level := slog.LevelError
	if err.Kind == KindPlugin {
		level = slog.LevelWarn
	}
	h.logger().Log(context.Background(), level, errorMessage(err.Err), attrs...)
}

// HandlePanic logs a PanicError.
func (h *LogHandler) HandlePanic(err *PanicError) {
	if err == nil {
		return
	}
	attrs := []any{"op", err.Op, "value", err.Value}
	if err.Component != "" {
		attrs = append(attrs, "component", err.Component)
	}
	if h.Verbose && err.StackTrace != "" {
		attrs = append(attrs, "stack", err.StackTrace)
	}
	h.logger().Error("recovered panic", attrs...)
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
