// Package logging carries loop correlation IDs through context.Context and
// injects them into slog records.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

type ctxKey int

const (
	workflowIDKey ctxKey = iota
	loopIDKey
	nodeIDKey
)

// correlationAttrs lists the context keys copied onto every record, in order.
var correlationAttrs = []struct {
	name string
	key  ctxKey
}{
	{"workflow_id", workflowIDKey},
	{"loop_id", loopIDKey},
	{"node_id", nodeIDKey},
}

// WithWorkflowID returns a context with the workflow ID set.
func WithWorkflowID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workflowIDKey, id)
}

// WithLoopID returns a context with the loop ID set.
func WithLoopID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, loopIDKey, id)
}

// WithNodeID returns a context with the node ID set.
func WithNodeID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, nodeIDKey, id)
}

// WorkflowID extracts the workflow ID from the context, or "" if absent.
func WorkflowID(ctx context.Context) string {
	v, _ := ctx.Value(workflowIDKey).(string)
	return v
}

// LoopID extracts the loop ID from the context, or "" if absent.
func LoopID(ctx context.Context) string {
	v, _ := ctx.Value(loopIDKey).(string)
	return v
}

// NodeID extracts the node ID from the context, or "" if absent.
func NodeID(ctx context.Context) string {
	v, _ := ctx.Value(nodeIDKey).(string)
	return v
}

// WithLoop sets the workflow and loop IDs at once.
func WithLoop(ctx context.Context, workflowID, loopID string) context.Context {
	return WithLoopID(WithWorkflowID(ctx, workflowID), loopID)
}

func correlation(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	for _, a := range correlationAttrs {
		if v, _ := ctx.Value(a.key).(string); v != "" {
			attrs = append(attrs, slog.String(a.name, v))
		}
	}
	return attrs
}

// LogWith returns a logger enriched with the non-empty correlation IDs in ctx.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	for _, a := range correlation(ctx) {
		logger = logger.With(a)
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler and adds correlation IDs from the
// record's context, so logger.InfoContext(ctx, ...) is enough.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(correlation(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// ParseLevel maps debug/info/warn/error to a slog level; unknown values are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds the process logger: JSON to w, correlation IDs injected.
func New(w io.Writer, level string) *slog.Logger {
	inner := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(NewCorrelationHandler(inner))
}

// Discard returns a logger that drops everything. Handy as a default.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
