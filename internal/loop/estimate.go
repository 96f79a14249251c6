package loop

import "time"

// RemainingIterations is how many iterations the max-iterations limit still allows.
func RemainingIterations(m *Metadata) int {
	return max(0, m.MaxIterations-m.CurrentIteration)
}

// RemainingTime extrapolates the mean iteration duration over the
// remaining iterations. It reports false before the first iteration.
func RemainingTime(m *Metadata, now time.Time) (time.Duration, bool) {
	if m.CurrentIteration <= 0 {
		return 0, false
	}
	elapsed := now.Sub(m.StartTime)
	perIteration := elapsed / time.Duration(m.CurrentIteration)
	return perIteration * time.Duration(RemainingIterations(m)), true
}
