package schema

// Event type constants for loop lifecycle notifications.
const (
	EventLoopStarted       = "loop_started"
	EventLoopIterCompleted = "loop_iter_completed"
	EventLoopExited        = "loop_exited"
	EventLoopCancelled     = "loop_cancelled"
	EventLoopEvicted       = "loop_evicted"
)

// LoopStatus represents the lifecycle state of a loop run.
type LoopStatus string

const (
	LoopStatusRunning   LoopStatus = "running"
	LoopStatusExited    LoopStatus = "exited"
	LoopStatusCancelled LoopStatus = "cancelled"
	LoopStatusFailed    LoopStatus = "failed"
	LoopStatusEvicted   LoopStatus = "evicted"
)

// IsTerminal returns true if the status is a final state.
func (s LoopStatus) IsTerminal() bool {
	return s != LoopStatusRunning
}

// ExitKind classifies why the break-condition evaluator stopped a loop.
type ExitKind string

const (
	ExitKindNone          ExitKind = ""
	ExitKindTimeout       ExitKind = "timeout"
	ExitKindMaxIterations ExitKind = "max_iterations"
	ExitKindConverged     ExitKind = "converged"
	ExitKindOscillating   ExitKind = "oscillating"
	ExitKindValueEquals   ExitKind = "value_equals"
	ExitKindValueContains ExitKind = "value_contains"
	ExitKindCustom        ExitKind = "custom"
)
