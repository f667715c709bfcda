package main

import (
	"context"
	"log/slog"
	"os"
)

type phaseKey struct{}

// withPhase tags every record logged with ctx by the given phase.
func withPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, phaseKey{}, phase)
}

// phaseHandler copies the phase stored in the context onto each record.
type phaseHandler struct {
	next slog.Handler
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(phaseHandler{
		next: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}),
	})
}

func (h phaseHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h phaseHandler) Handle(ctx context.Context, rec slog.Record) error {
	if phase, ok := ctx.Value(phaseKey{}).(string); ok {
		rec.AddAttrs(slog.String("phase", phase))
	}
	return h.next.Handle(ctx, rec)
}

func (h phaseHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return phaseHandler{next: h.next.WithAttrs(attrs)}
}

func (h phaseHandler) WithGroup(name string) slog.Handler {
	return phaseHandler{next: h.next.WithGroup(name)}
}
