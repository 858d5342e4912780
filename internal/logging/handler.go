package logging

import (
	"context"
	"errors"
	"log/slog"
)

// Sink is one log destination with its own minimum level.
// A nil Level admits everything the handler itself admits.
type Sink struct {
	Handler slog.Handler
	Level   slog.Leveler
}

func (s Sink) admits(ctx context.Context, lvl slog.Level) bool {
	if s.Level != nil && lvl < s.Level.Level() {
		return false
	}
	return s.Handler.Enabled(ctx, lvl)
}

// fanout delivers a record to every sink that admits its level.
type fanout struct {
	sinks []Sink
}

// NewFanout returns a handler writing to all sinks. Sinks without a handler are skipped.
func NewFanout(sinks ...Sink) slog.Handler {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s.Handler != nil {
			kept = append(kept, s)
		}
	}
	return &fanout{sinks: kept}
}

func (f *fanout) Enabled(ctx context.Context, lvl slog.Level) bool {
	for _, s := range f.sinks {
		if s.admits(ctx, lvl) {
			return true
		}
	}
	return false
}

// Handle writes to every admitting sink. A failing sink does not stop the rest.
func (f *fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, s := range f.sinks {
		if !s.admits(ctx, r.Level) {
			continue
		}
		if err := s.Handler.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f *fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f *fanout) derive(fn func(slog.Handler) slog.Handler) *fanout {
	sinks := make([]Sink, len(f.sinks))
	for i, s := range f.sinks {
		sinks[i] = Sink{Handler: fn(s.Handler), Level: s.Level}
	}
	return &fanout{sinks: sinks}
}

// ContextProvider returns the live server state stamped on every record,
// such as the realm, the current tick and the online population.
type ContextProvider func() []slog.Attr

// realmHandler evaluates its provider per record, so values stay current
// across a long-lived logger.
type realmHandler struct {
	next    slog.Handler
	provide ContextProvider
}

// WithRealmContext wraps next so every record carries the provider's attrs.
// A nil provider returns next unchanged.
func WithRealmContext(next slog.Handler, provide ContextProvider) slog.Handler {
	if provide == nil {
		return next
	}
	return &realmHandler{next: next, provide: provide}
}

func (h *realmHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.next.Enabled(ctx, lvl)
}

func (h *realmHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, a := range h.provide() {
		if a.Key != "" {
			r.AddAttrs(a)
		}
	}
	return h.next.Handle(ctx, r)
}

func (h *realmHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &realmHandler{next: h.next.WithAttrs(attrs), provide: h.provide}
}

func (h *realmHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &realmHandler{next: h.next.WithGroup(name), provide: h.provide}
}
