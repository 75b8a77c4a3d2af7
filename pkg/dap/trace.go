package dap

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"
)

// Event describes one command/response exchange.
type Event struct {
	Command  CommandID
	Request  []byte
	Response []byte
	Elapsed  time.Duration
	Err      error
}

// Tracer observes exchanges. It runs synchronously while the session lock is
// held and must not call back into the session.
type Tracer func(Event)

// SlogTracer logs every exchange at debug level, and failed exchanges at warn
// level.
func SlogTracer(logger *slog.Logger) Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ev Event) {
		level := slog.LevelDebug
		attrs := []slog.Attr{
			slog.String("cmd", ev.Command.String()),
			slog.String("req", hex.EncodeToString(ev.Request)),
			slog.String("resp", hex.EncodeToString(ev.Response)),
			slog.Duration("elapsed", ev.Elapsed),
		}
		if ev.Err != nil {
			level = slog.LevelWarn
			attrs = append(attrs, slog.Any("err", ev.Err))
		}
		logger.LogAttrs(context.Background(), level, "dap exchange", attrs...)
	}
}
