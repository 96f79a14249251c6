package loop

import (
	"time"

	"github.com/albert-ai/loopguard/pkg/schema"
)

// Observer receives loop lifecycle callbacks from a Runner. Implementations
// must be safe for concurrent use and must not block.
type Observer interface {
	LoopStarted(workflowID string)
	IterationRecorded(workflowID string, similarity float64)
	LoopFinished(workflowID string, status schema.LoopStatus, kind schema.ExitKind, iterations int, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) LoopStarted(string)                                                          {}
func (nopObserver) IterationRecorded(string, float64)                                           {}
func (nopObserver) LoopFinished(string, schema.LoopStatus, schema.ExitKind, int, time.Duration) {}
