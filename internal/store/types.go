package store

import (
	"time"

	"github.com/albert-ai/loopguard/pkg/schema"
)

// LoopRun is the persisted record of one activated loop.
type LoopRun struct {
	ID             string                     `json:"id"`
	WorkflowID     string                     `json:"workflow_id,omitempty"`
	Nodes          []string                   `json:"nodes"`
	EntryNode      string                     `json:"entry_node"`
	ExitNode       string                     `json:"exit_node"`
	MaxIterations  int                        `json:"max_iterations"`
	TimeoutMs      int64                      `json:"timeout_ms"`
	ExitConditions []schema.LoopExitCondition `json:"exit_conditions"`
	Status         schema.LoopStatus          `json:"status"`
	ExitReason     string                     `json:"exit_reason,omitempty"`
	ExitKind       schema.ExitKind            `json:"exit_kind,omitempty"`
	Iterations     int                        `json:"iterations"`
	StartedAt      time.Time                  `json:"started_at"`
	CompletedAt    *time.Time                 `json:"completed_at,omitempty"`
	UpdatedAt      time.Time                  `json:"updated_at"`
}

// Iteration is one recorded output of a loop run.
type Iteration struct {
	LoopID     string    `json:"loop_id"`
	Iteration  int       `json:"iteration"`
	Output     string    `json:"output"`
	Similarity float64   `json:"similarity"`
	ChangeRate float64   `json:"change_rate"`
	CreatedAt  time.Time `json:"created_at"`
}

// LoopRunCompletion carries the final state written when a loop run ends.
type LoopRunCompletion struct {
	Status     schema.LoopStatus
	ExitReason string
	ExitKind   schema.ExitKind
	Iterations int
	At         time.Time
}

// LoopRunFilter narrows ListLoopRuns results.
type LoopRunFilter struct {
	WorkflowID string
	Status     *schema.LoopStatus
	Since      *time.Time
	Limit      int
	Offset     int
}
