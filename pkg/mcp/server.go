package mcp

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/albert-ai/loopguard/internal/loop"
	"github.com/albert-ai/loopguard/internal/store"
	"github.com/albert-ai/loopguard/internal/streaming"
	"github.com/albert-ai/loopguard/internal/validation"
)

// LoopDefaults are applied to loops started through loopguard.start before
// the loop's own LoopConfig.
type LoopDefaults struct {
	HistoryCap    int
	MaxIterations int
	Timeout       time.Duration
}

// LoopguardServerDeps holds the dependencies for creating a LoopguardServer.
// Store and Hub are optional.
type LoopguardServerDeps struct {
	Registry  *loop.Registry
	Validator *validation.DocumentValidator
	Store     store.Store
	Hub       streaming.EventHub
	Defaults  LoopDefaults
	Logger    *slog.Logger
	Version   string
}

// LoopguardServer wraps an MCP server with loop-control tool handlers.
type LoopguardServer struct {
	registry  *loop.Registry
	validator *validation.DocumentValidator
	store     store.Store
	hub       streaming.EventHub
	defaults  LoopDefaults
	logger    *slog.Logger
	sessions  *SessionRegistry
	notifier  AgentNotifier
	mcpServer *server.MCPServer
}

// NewLoopguardServer creates a LoopguardServer with every tool registered.
func NewLoopguardServer(deps LoopguardServerDeps) *LoopguardServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	registry := deps.Registry
	if registry == nil {
		registry = loop.NewRegistry(loop.NewRunner(loop.RunnerDeps{Logger: logger}))
	}
	validator := deps.Validator
	if validator == nil {
		// The embedded schema always compiles; a failure here is a build defect.
		v, err := validation.NewDocumentValidator(nil)
		if err != nil {
			panic(err)
		}
		validator = v
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &LoopguardServer{
		registry:  registry,
		validator: validator,
		store:     deps.Store,
		hub:       deps.Hub,
		defaults:  deps.Defaults,
		logger:    logger,
		sessions:  NewSessionRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"loopguard",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Loopguard finds loops in agent workflow graphs and decides when a running loop should stop. Use loopguard.detect and loopguard.would_create while editing, loopguard.validate before saving, loopguard.start to activate a loop, loopguard.record after every iteration until should_exit is true, and loopguard.status or loopguard.diagram to inspect progress."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.sessions)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin
// closes. Loop events from the hub are pushed to the session that started
// the loop while serving.
func (s *LoopguardServer) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.hub != nil {
		events, unsubscribe, err := s.hub.Subscribe(ctx, streaming.EventFilter{})
		if err != nil {
			return err
		}
		defer unsubscribe()
		go s.forwardEvents(ctx, events)
	}

	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *LoopguardServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// forwardEvents relays hub events until ctx ends or the channel closes.
func (s *LoopguardServer) forwardEvents(ctx context.Context, events <-chan streaming.StreamEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.deliver(ctx, ev)
		}
	}
}

func (s *LoopguardServer) deliver(ctx context.Context, ev streaming.StreamEvent) {
	payload := map[string]any{
		"event_type": ev.EventType,
		"loop_id":    ev.LoopID,
		"iteration":  ev.Iteration,
		"timestamp":  ev.Timestamp,
	}
	if ev.WorkflowID != "" {
		payload["workflow_id"] = ev.WorkflowID
	}
	if ev.Payload != nil {
		payload["data"] = ev.Payload
	}
	if err := s.notifier.Notify(ctx, ev.LoopID, payload); err != nil {
		s.logger.WarnContext(ctx, "loop notification failed", "loop_id", ev.LoopID, "event_type", ev.EventType, "error", err)
	}
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *LoopguardServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: detectTool(), Handler: s.handleDetect},
		{Tool: wouldCreateTool(), Handler: s.handleWouldCreate},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: convergenceTool(), Handler: s.handleConvergence},
		{Tool: startTool(), Handler: s.handleStart},
		{Tool: recordTool(), Handler: s.handleRecord},
		{Tool: cancelTool(), Handler: s.handleCancel},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func workflowArg() mcp.ToolOption {
	return mcp.WithObject("workflow", mcp.Required(),
		mcp.Description("Workflow document: {id, name, nodes[], connections[]} with connections carrying from_node_id, to_node_id, is_loop_edge and loop_config"),
	)
}

func detectTool() mcp.Tool {
	return mcp.NewTool("loopguard.detect",
		mcp.WithDescription("Detect loops (strongly connected components) in a workflow graph"),
		workflowArg(),
		mcp.WithBoolean("include_self", mcp.Description("Also report single nodes that connect to themselves (default: false)")),
	)
}

func wouldCreateTool() mcp.Tool {
	return mcp.NewTool("loopguard.would_create",
		mcp.WithDescription("Check whether adding a connection would create a new loop"),
		workflowArg(),
		mcp.WithString("from", mcp.Required(), mcp.Description("Source node ID of the proposed connection")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Target node ID of the proposed connection")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("loopguard.validate",
		mcp.WithDescription("Validate a workflow document and its loop configuration"),
		workflowArg(),
	)
}

func convergenceTool() mcp.Tool {
	return mcp.NewTool("loopguard.convergence",
		mcp.WithDescription("Analyze an output history for convergence and oscillation"),
		mcp.WithArray("history", mcp.Required(),
			mcp.Items(map[string]any{"type": "string"}),
			mcp.Description("Outputs in iteration order, oldest first"),
		),
		mcp.WithNumber("threshold", mcp.Description("Similarity threshold in [0,1] (default: 0.95)")),
		mcp.WithNumber("window", mcp.Description("Number of previous outputs compared (default: 3)")),
	)
}

func startTool() mcp.Tool {
	return mcp.NewTool("loopguard.start",
		mcp.WithDescription("Activate a loop from a workflow so its iterations can be recorded"),
		workflowArg(),
		mcp.WithString("node_id", mcp.Description("Pick the loop containing this node (default: first detected loop)")),
		mcp.WithString("loop_id", mcp.Description("Loop ID to use (default: generated)")),
	)
}

func recordTool() mcp.Tool {
	return mcp.NewTool("loopguard.record",
		mcp.WithDescription("Record one iteration's output and decide whether the loop should exit"),
		mcp.WithString("loop_id", mcp.Required(), mcp.Description("ID returned by loopguard.start")),
		mcp.WithString("output", mcp.Required(), mcp.Description("Output produced by this iteration")),
	)
}

func cancelTool() mcp.Tool {
	return mcp.NewTool("loopguard.cancel",
		mcp.WithDescription("Cancel a running loop"),
		mcp.WithString("loop_id", mcp.Required(), mcp.Description("ID of the loop to cancel")),
		mcp.WithString("reason", mcp.Description("Why the loop is being cancelled")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("loopguard.status",
		mcp.WithDescription("Get loop status, or list loops when no loop_id is given"),
		mcp.WithString("loop_id", mcp.Description("ID of the loop to query")),
		mcp.WithString("workflow_id", mcp.Description("Restrict the listing to one workflow")),
		mcp.WithBoolean("include_iterations", mcp.Description("Include persisted iterations for a single loop (default: false)")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("loopguard.diagram",
		mcp.WithDescription("Generate a diagram of a workflow with its loops highlighted. Returns Mermaid flowchart syntax or a PNG image"),
		workflowArg(),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("mermaid", "image"),
			mcp.Description("Output format: mermaid (flowchart syntax) or image (PNG)"),
		),
		mcp.WithBoolean("include_status", mcp.Description("Overlay active loop state on loop badges (default: true)")),
	)
}
