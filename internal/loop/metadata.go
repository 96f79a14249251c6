package loop

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/albert-ai/loopguard/internal/graph"
	"github.com/albert-ai/loopguard/pkg/schema"
)

// Defaults applied when a loop has no LoopConfig or leaves a field unset.
const (
	DefaultMaxIterations = 10
	DefaultTimeout       = 5 * time.Minute
)

// Metadata is the runtime state of one activated loop. A single writer
// drives it: callers must not evaluate or advance the same Metadata
// concurrently.
type Metadata struct {
	LoopID     string `json:"loop_id"`
	WorkflowID string `json:"workflow_id,omitempty"`

	Nodes     []string `json:"nodes"`
	Edges     []string `json:"edges"`
	EntryNode string   `json:"entry_node"`
	ExitNode  string   `json:"exit_node"`

	CurrentIteration     int                        `json:"current_iteration"`
	MaxIterations        int                        `json:"max_iterations"`
	ExitConditions       []schema.LoopExitCondition `json:"exit_conditions"`
	ConvergenceThreshold *float64                   `json:"convergence_threshold,omitempty"`

	History   *History      `json:"history"`
	StartTime time.Time     `json:"start_time"`
	Timeout   time.Duration `json:"timeout"`
}

// Option customizes Metadata before a LoopConfig is applied.
type Option func(*Metadata)

// WithLoopID fixes the loop id instead of generating one.
func WithLoopID(id string) Option {
	return func(m *Metadata) { m.LoopID = id }
}

// WithWorkflowID tags the loop with its owning workflow.
func WithWorkflowID(id string) Option {
	return func(m *Metadata) { m.WorkflowID = id }
}

// WithHistoryCap sets the history retention.
func WithHistoryCap(capacity int) Option {
	return func(m *Metadata) { m.History = NewHistory(capacity) }
}

// WithStartTime overrides the start time, mostly for tests.
func WithStartTime(t time.Time) Option {
	return func(m *Metadata) { m.StartTime = t }
}

// WithLimits replaces the built-in iteration and timeout defaults.
// A LoopConfig applied afterwards still wins.
func WithLimits(maxIterations int, timeout time.Duration) Option {
	return func(m *Metadata) {
		if maxIterations > 0 {
			m.MaxIterations = maxIterations
		}
		if timeout > 0 {
			m.Timeout = timeout
		}
	}
}

// NewMetadata returns loop state with defaults and opts applied.
func NewMetadata(opts ...Option) *Metadata {
	m := &Metadata{
		LoopID:         uuid.NewString(),
		MaxIterations:  DefaultMaxIterations,
		ExitConditions: []schema.LoopExitCondition{{Type: schema.ExitMaxIterations}},
		History:        NewHistory(DefaultHistoryCap),
		StartTime:      time.Now(),
		Timeout:        DefaultTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FromSCC seeds loop state for a detected cycle. The LoopConfig comes from
// the first connection inside the cycle that carries one, preferring
// connections flagged as loop edges.
func FromSCC(scc graph.StronglyConnectedComponent, conns []schema.Connection, opts ...Option) *Metadata {
	m := NewMetadata(opts...)
	m.Nodes = slices.Clone(scc.Nodes)
	m.Edges = slices.Clone(scc.Edges)

	m.EntryNode = EntryNode(scc)
	m.ExitNode = ExitNode(scc)

	m.ApplyConfig(ConfigFor(scc, conns))
	return m
}

// EntryNode is the node a loop starts from: its first entry point, or its
// first node when nothing enters from outside.
func EntryNode(scc graph.StronglyConnectedComponent) string {
	switch {
	case len(scc.EntryPoints) > 0:
		return scc.EntryPoints[0]
	case len(scc.Nodes) > 0:
		return scc.Nodes[0]
	}
	return ""
}

// ExitNode is the node a loop leaves from: its first exit point, or its
// last node when nothing leaves.
func ExitNode(scc graph.StronglyConnectedComponent) string {
	switch {
	case len(scc.ExitPoints) > 0:
		return scc.ExitPoints[0]
	case len(scc.Nodes) > 0:
		return scc.Nodes[len(scc.Nodes)-1]
	}
	return ""
}

// MaxIterationsFor is the iteration cap cfg sets, or DefaultMaxIterations.
func MaxIterationsFor(cfg *schema.LoopConfig) int {
	if cfg != nil && cfg.MaxIterations > 0 {
		return cfg.MaxIterations
	}
	return DefaultMaxIterations
}

// ensureHistory gives a Metadata built without NewMetadata its history.
func (m *Metadata) ensureHistory() {
	if m.History == nil {
		m.History = NewHistory(DefaultHistoryCap)
	}
}

// ConfigFor finds the LoopConfig governing scc, or nil.
func ConfigFor(scc graph.StronglyConnectedComponent, conns []schema.Connection) *schema.LoopConfig {
	var fallback *schema.LoopConfig
	for i := range conns {
		c := &conns[i]
		if c.LoopConfig == nil || !scc.Contains(c.FromNodeID) || !scc.Contains(c.ToNodeID) {
			continue
		}
		if c.IsLoopEdge {
			return c.LoopConfig
		}
		if fallback == nil {
			fallback = c.LoopConfig
		}
	}
	return fallback
}

// ApplyConfig overwrites the fields cfg sets. Zero values keep the current setting.
func (m *Metadata) ApplyConfig(cfg *schema.LoopConfig) {
	if cfg == nil {
		return
	}
	if cfg.MaxIterations > 0 {
		m.MaxIterations = cfg.MaxIterations
	}
	if len(cfg.ExitConditions) > 0 {
		m.ExitConditions = slices.Clone(cfg.ExitConditions)
	}
	if cfg.ConvergenceThreshold != nil {
		m.ConvergenceThreshold = schema.Float(*cfg.ConvergenceThreshold)
	}
	if cfg.TimeoutSeconds > 0 {
		m.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
}

// Snapshot is a point-in-time view of a loop, safe to serialize.
type Snapshot struct {
	LoopID              string            `json:"loop_id"`
	WorkflowID          string            `json:"workflow_id,omitempty"`
	Nodes               []string          `json:"nodes"`
	EntryNode           string            `json:"entry_node"`
	ExitNode            string            `json:"exit_node"`
	Iteration           int               `json:"iteration"`
	MaxIterations       int               `json:"max_iterations"`
	RemainingIterations int               `json:"remaining_iterations"`
	ElapsedMs           int64             `json:"elapsed_ms"`
	RemainingMs         *int64            `json:"remaining_ms,omitempty"`
	Badge               string            `json:"badge"`
	History             []string          `json:"history"`
	HistoryTotal        int               `json:"history_total"`
	State               schema.LoopStatus `json:"state,omitempty"`
	ExitReason          string            `json:"exit_reason,omitempty"`
	ExitKind            schema.ExitKind   `json:"exit_kind,omitempty"`
}

// Snapshot captures the loop as of now.
func (m *Metadata) Snapshot(now time.Time) Snapshot {
	s := Snapshot{
		LoopID:              m.LoopID,
		WorkflowID:          m.WorkflowID,
		Nodes:               slices.Clone(m.Nodes),
		EntryNode:           m.EntryNode,
		ExitNode:            m.ExitNode,
		Iteration:           m.CurrentIteration,
		MaxIterations:       m.MaxIterations,
		RemainingIterations: RemainingIterations(m),
		ElapsedMs:           now.Sub(m.StartTime).Milliseconds(),
		Badge:               graph.LoopBadgeText(m.CurrentIteration, m.MaxIterations),
		History:             m.History.Values(),
		HistoryTotal:        m.History.Total(),
	}
	if d, ok := RemainingTime(m, now); ok {
		ms := d.Milliseconds()
		s.RemainingMs = &ms
	}
	return s
}
