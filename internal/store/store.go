package store

import (
	"context"
	"time"
)

// Store defines the persistence layer contract for loop runs.
// All implementations must be safe for concurrent use.
type Store interface {
	// Loop runs
	CreateLoopRun(ctx context.Context, run *LoopRun) error
	GetLoopRun(ctx context.Context, id string) (*LoopRun, error)
	ListLoopRuns(ctx context.Context, filter LoopRunFilter) ([]*LoopRun, error)
	CompleteLoopRun(ctx context.Context, id string, completion LoopRunCompletion) error

	// Iterations (append-only)
	AppendIteration(ctx context.Context, it *Iteration) error
	ListIterations(ctx context.Context, loopID string) ([]*Iteration, error)

	// Maintenance
	PurgeLoopRuns(ctx context.Context, before time.Time) (int64, error)

	Close() error
}
