package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/albert-ai/loopguard/internal/convergence"
	"github.com/albert-ai/loopguard/internal/diagram"
	"github.com/albert-ai/loopguard/internal/graph"
	"github.com/albert-ai/loopguard/internal/loop"
	"github.com/albert-ai/loopguard/internal/store"
	"github.com/albert-ai/loopguard/pkg/schema"
)

// detectedLoop is one loop as reported by loopguard.detect.
type detectedLoop struct {
	graph.StronglyConnectedComponent
	EntryNode string             `json:"entry_node"`
	ExitNode  string             `json:"exit_node"`
	Config    *schema.LoopConfig `json:"config,omitempty"`
	Badge     string             `json:"badge"`
}

// connectionView is the editor's view of one connection.
type connectionView struct {
	ID       string                `json:"id"`
	InLoop   bool                  `json:"in_loop"`
	LoopEdge bool                  `json:"loop_edge"`
	Style    graph.ConnectionStyle `json:"style"`
}

// handleDetect reports every loop in the workflow and how each connection should be drawn.
func (s *LoopguardServer) handleDetect(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := decodeWorkflow(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var sccs []graph.StronglyConnectedComponent
	if req.GetBool("include_self", false) {
		sccs = graph.DetectLoopsIncludingSelf(doc.Connections)
	} else {
		sccs = graph.DetectLoops(doc.Connections)
	}

	loops := make([]detectedLoop, 0, len(sccs))
	for _, scc := range sccs {
		cfg := loop.ConfigFor(scc, doc.Connections)
		loops = append(loops, detectedLoop{
			StronglyConnectedComponent: scc,
			EntryNode:                  loop.EntryNode(scc),
			ExitNode:                   loop.ExitNode(scc),
			Config:                     cfg,
			Badge:                      graph.LoopBadgeText(0, loop.MaxIterationsFor(cfg)),
		})
	}

	conns := make([]connectionView, 0, len(doc.Connections))
	for _, c := range doc.Connections {
		conns = append(conns, connectionView{
			ID:       c.ID,
			InLoop:   graph.IsConnectionInLoop(c, sccs),
			LoopEdge: graph.IsLoopEdge(c, sccs),
			Style:    graph.StyleFor(c, sccs),
		})
	}

	return marshalResult(map[string]any{
		"has_loops":   len(loops) > 0,
		"loops":       loops,
		"connections": conns,
	})
}

// handleWouldCreate checks a proposed connection before the editor commits it.
func (s *LoopguardServer) handleWouldCreate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := decodeWorkflow(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	from, err := req.RequireString("from")
	if err != nil {
		return mcp.NewToolResultError("from is required"), nil
	}
	to, err := req.RequireString("to")
	if err != nil {
		return mcp.NewToolResultError("to is required"), nil
	}

	return marshalResult(map[string]any{
		"from":              from,
		"to":                to,
		"would_create_loop": graph.WouldCreateLoop(doc.Connections, from, to),
		"self_loop":         from == to,
	})
}

// handleValidate runs the document validation pipeline.
func (s *LoopguardServer) handleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := workflowJSON(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	_, result := s.validator.ValidateRaw(raw)
	result.Sort()
	return marshalResult(map[string]any{
		"valid":    result.Valid(),
		"summary":  result.Summary(),
		"errors":   result.Errors,
		"warnings": result.Warnings,
	})
}

// handleConvergence analyzes a history without activating a loop.
func (s *LoopguardServer) handleConvergence(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	history, ok := stringSlice(req, "history")
	if !ok {
		return mcp.NewToolResultError("history must be an array of strings"), nil
	}
	threshold := req.GetFloat("threshold", convergence.DefaultThreshold)
	if threshold < 0 || threshold > 1 {
		return mcp.NewToolResultError("threshold must be between 0 and 1"), nil
	}
	window := req.GetInt("window", convergence.DefaultWindow)

	numbers := convergence.ExtractNumericHistory(history)
	return marshalResult(map[string]any{
		"report":            convergence.Check(history, threshold, window),
		"numeric_values":    numbers,
		"numeric_converged": convergence.HasNumericConverged(numbers, convergence.DefaultNumericThreshold, window),
	})
}

// handleStart activates a loop of the workflow in the registry.
func (s *LoopguardServer) handleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := decodeWorkflow(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	scc, err := pickLoop(doc.Connections, req.GetString("node_id", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	opts := []loop.Option{
		loop.WithWorkflowID(doc.ID),
		loop.WithLimits(s.defaults.MaxIterations, s.defaults.Timeout),
	}
	if s.defaults.HistoryCap > 0 {
		opts = append(opts, loop.WithHistoryCap(s.defaults.HistoryCap))
	}
	if id := req.GetString("loop_id", ""); id != "" {
		opts = append(opts, loop.WithLoopID(id))
	}

	meta := loop.FromSCC(scc, doc.Connections, opts...)
	if putErr := s.registry.Put(ctx, meta); putErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to start loop: %v", putErr)), nil
	}
	s.captureSession(ctx, meta.LoopID)

	snap, _ := s.registry.Get(meta.LoopID)
	return marshalResult(snap)
}

// handleRecord feeds one iteration's output to an active loop.
func (s *LoopguardServer) handleRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	loopID, err := req.RequireString("loop_id")
	if err != nil {
		return mcp.NewToolResultError("loop_id is required"), nil
	}
	output, err := req.RequireString("output")
	if err != nil {
		return mcp.NewToolResultError("output is required"), nil
	}

	s.captureSession(ctx, loopID)

	decision, recErr := s.registry.Record(ctx, loopID, output)
	if recErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("record failed: %v", recErr)), nil
	}

	snap, _ := s.registry.Get(loopID)
	return marshalResult(map[string]any{
		"should_exit": decision.ShouldExit,
		"reason":      decision.Reason,
		"kind":        decision.Kind,
		"loop":        snap,
	})
}

// handleCancel stops a running loop.
func (s *LoopguardServer) handleCancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	loopID, err := req.RequireString("loop_id")
	if err != nil {
		return mcp.NewToolResultError("loop_id is required"), nil
	}
	reason := req.GetString("reason", "cancelled by agent")

	if cErr := s.registry.Cancel(ctx, loopID, reason); cErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cancel failed: %v", cErr)), nil
	}
	snap, _ := s.registry.Get(loopID)
	return marshalResult(snap)
}

// handleStatus returns one loop, falling back to the store for loops no
// longer held in memory, or lists the active loops.
func (s *LoopguardServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	loopID := req.GetString("loop_id", "")
	workflowID := req.GetString("workflow_id", "")

	if loopID == "" {
		return s.listLoops(ctx, workflowID)
	}

	if snap, ok := s.registry.Get(loopID); ok {
		if !req.GetBool("include_iterations", false) || s.store == nil {
			return marshalResult(snap)
		}
		iterations, err := s.store.ListIterations(ctx, loopID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("iteration query failed: %v", err)), nil
		}
		return marshalResult(map[string]any{"loop": snap, "iterations": iterations})
	}

	if s.store == nil {
		return mcp.NewToolResultError(fmt.Sprintf("loop %s not found", loopID)), nil
	}
	run, err := s.store.GetLoopRun(ctx, loopID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status query failed: %v", err)), nil
	}
	result := map[string]any{"run": run}
	if req.GetBool("include_iterations", false) {
		iterations, itErr := s.store.ListIterations(ctx, loopID)
		if itErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("iteration query failed: %v", itErr)), nil
		}
		result["iterations"] = iterations
	}
	return marshalResult(result)
}

func (s *LoopguardServer) listLoops(ctx context.Context, workflowID string) (*mcp.CallToolResult, error) {
	active := make([]loop.Snapshot, 0)
	for _, snap := range s.registry.List() {
		if workflowID == "" || snap.WorkflowID == workflowID {
			active = append(active, snap)
		}
	}
	result := map[string]any{"loops": active}

	if s.store != nil && workflowID != "" {
		runs, err := s.store.ListLoopRuns(ctx, store.LoopRunFilter{WorkflowID: workflowID, Limit: 50})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}
		result["runs"] = runs
	}
	return marshalResult(result)
}

// handleDiagram renders the workflow with loops highlighted.
func (s *LoopguardServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "mermaid" && format != "image" {
		return mcp.NewToolResultError("format must be mermaid or image"), nil
	}
	doc, err := decodeWorkflow(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var active []loop.Snapshot
	if req.GetBool("include_status", true) {
		for _, snap := range s.registry.List() {
			if doc.ID == "" || snap.WorkflowID == doc.ID {
				active = append(active, snap)
			}
		}
	}

	model, buildErr := diagram.Build(doc, active)
	if buildErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", buildErr)), nil
	}

	switch format {
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		png, imgErr := diagram.RenderImage(ctx, model)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		encoded := base64.StdEncoding.EncodeToString(png)
		return mcp.NewToolResultImage(model.Title, encoded, "image/png"), nil
	}
}

// --- Internal helpers ---

// workflowJSON re-encodes the workflow argument for decoding or validation.
func workflowJSON(req mcp.CallToolRequest) ([]byte, error) {
	raw := mcp.ParseStringMap(req, "workflow", nil)
	if raw == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow is required")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid workflow: %v", err)
	}
	return data, nil
}

// decodeWorkflow parses the workflow argument without running validation,
// so graphs that are mid-edit can still be analyzed.
func decodeWorkflow(req mcp.CallToolRequest) (*schema.WorkflowDocument, error) {
	data, err := workflowJSON(req)
	if err != nil {
		return nil, err
	}
	var doc schema.WorkflowDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid workflow: %v", err)
	}
	return &doc, nil
}

// stringSlice reads an array-of-strings argument. Any non-string element
// rejects the whole argument.
func stringSlice(req mcp.CallToolRequest, key string) ([]string, bool) {
	switch v := req.GetArguments()[key].(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	default:
		return nil, false
	}
}

// pickLoop selects the loop containing nodeID, or the first loop when
// nodeID is empty.
func pickLoop(conns []schema.Connection, nodeID string) (graph.StronglyConnectedComponent, error) {
	loops := graph.DetectLoopsIncludingSelf(conns)
	if len(loops) == 0 {
		return graph.StronglyConnectedComponent{}, schema.NewError(schema.ErrCodeNotFound, "workflow has no loops")
	}
	if nodeID == "" {
		return loops[0], nil
	}
	if matched := graph.LoopsForNode(nodeID, loops); len(matched) > 0 {
		return matched[0], nil
	}
	return graph.StronglyConnectedComponent{}, schema.NewErrorf(schema.ErrCodeNotFound, "node %s is not part of a loop", nodeID)
}

// captureSession maps the loop to the caller's MCP session for notifications.
func (s *LoopguardServer) captureSession(ctx context.Context, loopID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(loopID, session.SessionID())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
