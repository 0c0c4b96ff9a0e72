package logger

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// Logger is the leveled logging interface used across the SDK.
// Arguments after the message are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Handler implements Logger on top of zerolog.
type Handler struct {
	logger zerolog.Logger
}

// New creates a Handler writing JSON log lines to w.
func New(w io.Writer) *Handler {
	return &Handler{logger: zerolog.New(w).With().Timestamp().Logger()}
}

// FromZerolog wraps an existing zerolog.Logger, so that applications
// already using zerolog can pass their configured logger through.
func FromZerolog(l zerolog.Logger) *Handler {
	return &Handler{logger: l}
}

// Nop returns a Handler that discards everything. Useful in tests.
func Nop() *Handler {
	return &Handler{logger: zerolog.Nop()}
}

func (h *Handler) Debug(msg string, args ...any) { h.emit(h.logger.Debug(), msg, args) }
func (h *Handler) Info(msg string, args ...any)  { h.emit(h.logger.Info(), msg, args) }
func (h *Handler) Warn(msg string, args ...any)  { h.emit(h.logger.Warn(), msg, args) }
func (h *Handler) Error(msg string, args ...any) { h.emit(h.logger.Error(), msg, args) }

func (h *Handler) emit(ev *zerolog.Event, msg string, args []any) {
	for i := 0; i+1 < len(args); i += 2 {
		ev = ev.Interface(fmt.Sprint(args[i]), args[i+1])
	}
	if len(args)%2 == 1 {
		// Dangling key without a value; keep it visible rather than dropping it.
		ev = ev.Interface("arg", args[len(args)-1])
	}
	ev.Msg(msg)
}
