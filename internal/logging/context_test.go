package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "", WorkflowID(ctx))
	assert.Equal(t, "", LoopID(ctx))
	assert.Equal(t, "", NodeID(ctx))

	ctx = WithWorkflowID(ctx, "wf-123")
	ctx = WithLoopID(ctx, "loop-1")
	ctx = WithNodeID(ctx, "agent-a")

	assert.Equal(t, "wf-123", WorkflowID(ctx))
	assert.Equal(t, "loop-1", LoopID(ctx))
	assert.Equal(t, "agent-a", NodeID(ctx))
}

func TestWithLoop(t *testing.T) {
	ctx := WithLoop(context.Background(), "wf-1", "loop-2")
	assert.Equal(t, "wf-1", WorkflowID(ctx))
	assert.Equal(t, "loop-2", LoopID(ctx))
	assert.Equal(t, "", NodeID(ctx))
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithNodeID(WithLoop(context.Background(), "wf-abc", "loop-x"), "n-7")
	LogWith(ctx, logger).Info("test message")

	output := buf.String()
	assert.Contains(t, output, "workflow_id=wf-abc")
	assert.Contains(t, output, "loop_id=loop-x")
	assert.Contains(t, output, "node_id=n-7")
	assert.Contains(t, output, "test message")
}

func TestLogWithMissingKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	LogWith(WithLoopID(context.Background(), "loop-only"), logger).Info("partial context")

	output := buf.String()
	assert.Contains(t, output, "loop_id=loop-only")
	assert.NotContains(t, output, "workflow_id")
	assert.NotContains(t, output, "node_id")
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(NewCorrelationHandler(inner))

	logger.InfoContext(WithLoop(context.Background(), "wf-auto", "loop-auto"), "auto inject")

	output := buf.String()
	assert.Contains(t, output, `"workflow_id":"wf-auto"`)
	assert.Contains(t, output, `"loop_id":"loop-auto"`)
	assert.NotContains(t, output, "node_id")
}

func TestCorrelationHandlerEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "bare log")

	output := buf.String()
	assert.NotContains(t, output, "loop_id")
	assert.Contains(t, output, "bare log")
}

func TestCorrelationHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	handler := NewCorrelationHandler(slog.NewJSONHandler(&buf, nil))
	logger := slog.New(handler.WithAttrs([]slog.Attr{slog.String("component", "evaluator")}))

	logger.InfoContext(WithLoopID(context.Background(), "loop-attr"), "with attrs")

	output := buf.String()
	assert.Contains(t, output, `"loop_id":"loop-attr"`)
	assert.Contains(t, output, `"component":"evaluator"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn")

	logger.Info("hidden")
	logger.WarnContext(WithLoopID(context.Background(), "l-1"), "shown")

	output := buf.String()
	assert.NotContains(t, output, "hidden")
	assert.Contains(t, output, `"loop_id":"l-1"`)
}
