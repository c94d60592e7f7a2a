package observability

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/buildmesh/internal/logfields"
)

// LogContext holds structured logging context information.
type LogContext struct {
	QueueKey   string
	Handler    string
	BuildKind  string
	BuildID    int64
	InstanceID string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithQueueKey adds the key of the queue item being dispatched to the context.
func WithQueueKey(ctx context.Context, key string) context.Context {
	lc := extractLogContext(ctx)
	lc.QueueKey = key
	return context.WithValue(ctx, logContextKey, lc)
}

// WithHandler adds the name of the running event handler to the context.
func WithHandler(ctx context.Context, name string) context.Context {
	lc := extractLogContext(ctx)
	lc.Handler = name
	return context.WithValue(ctx, logContextKey, lc)
}

// WithBuild adds the build a visitor is working on to the context.
func WithBuild(ctx context.Context, kind string, id int64) context.Context {
	lc := extractLogContext(ctx)
	lc.BuildKind = kind
	lc.BuildID = id
	return context.WithValue(ctx, logContextKey, lc)
}

// WithInstanceID adds the scheduler instance identity to the context.
func WithInstanceID(ctx context.Context, id string) context.Context {
	lc := extractLogContext(ctx)
	lc.InstanceID = id
	return context.WithValue(ctx, logContextKey, lc)
}

func extractLogContext(ctx context.Context) LogContext {
	if ctx == nil {
		return LogContext{}
	}
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

// GetContext returns the structured log context from the provided context.
func GetContext(ctx context.Context) LogContext {
	return extractLogContext(ctx)
}

// Attrs returns the slog attributes carried by ctx.
func Attrs(ctx context.Context) []slog.Attr {
	lc := extractLogContext(ctx)
	var attrs []slog.Attr
	if lc.InstanceID != "" {
		attrs = append(attrs, logfields.InstanceID(lc.InstanceID))
	}
	if lc.QueueKey != "" {
		attrs = append(attrs, logfields.QueueKey(lc.QueueKey))
	}
	if lc.Handler != "" {
		attrs = append(attrs, logfields.Handler(lc.Handler))
	}
	if lc.BuildKind != "" {
		attrs = append(attrs, logfields.BuildKind(lc.BuildKind))
	}
	if lc.BuildID != 0 {
		attrs = append(attrs, logfields.BuildID(lc.BuildID))
	}
	return attrs
}

// ContextHandler adds the LogContext of the record's context to every record.
type ContextHandler struct {
	slog.Handler
}

// NewContextHandler wraps next.
func NewContextHandler(next slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: next}
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := Attrs(ctx); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{Handler: h.Handler.WithGroup(name)}
}
