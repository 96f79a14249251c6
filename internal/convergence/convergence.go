package convergence

// Defaults used when callers pass a zero window or threshold.
const (
	DefaultThreshold         = 0.95
	DefaultWindow            = 3
	DefaultOscillationWindow = 4

	// oscillationSimilarity is the bar two outputs two steps apart must clear.
	oscillationSimilarity = 0.9
)

// Report aggregates the convergence signals for one history.
type Report struct {
	Converged   bool    `json:"converged"`
	Oscillating bool    `json:"oscillating"`
	ChangeRate  float64 `json:"change_rate"`
	// Similarity is between the last two entries only, not the window mean.
	Similarity float64 `json:"similarity"`
}

// HasConverged compares the latest entry with each of the window entries
// before it and reports whether their mean similarity reaches threshold.
// It needs at least window+1 entries.
func HasConverged(history []string, threshold float64, window int) bool {
	if window <= 0 {
		window = DefaultWindow
	}
	if len(history) < window+1 {
		return false
	}

	last := history[len(history)-1]
	previous := history[len(history)-1-window : len(history)-1]

	var total float64
	for _, h := range previous {
		total += StringSimilarity(last, h)
	}
	return total/float64(window) >= threshold
}

// IsOscillating reports a back-and-forth pattern: within the last window
// entries, some pair two positions apart is near-identical.
func IsOscillating(history []string, window int) bool {
	if window <= 0 {
		window = DefaultOscillationWindow
	}
	if len(history) < window {
		return false
	}

	recent := history[len(history)-window:]
	for i := 0; i+2 < len(recent); i++ {
		if StringSimilarity(recent[i], recent[i+2]) > oscillationSimilarity {
			return true
		}
	}
	return false
}

// ChangeRate is 1 minus the similarity of the last two entries.
// With fewer than two entries the change is maximal.
func ChangeRate(history []string) float64 {
	if len(history) < 2 {
		return 1
	}
	return 1 - StringSimilarity(history[len(history)-2], history[len(history)-1])
}

// Check runs every text signal over history. A non-positive window falls
// back to DefaultWindow; threshold is used as given.
func Check(history []string, threshold float64, window int) Report {
	if window <= 0 {
		window = DefaultWindow
	}

	r := Report{
		Converged:   HasConverged(history, threshold, window),
		Oscillating: IsOscillating(history, DefaultOscillationWindow),
		ChangeRate:  ChangeRate(history),
	}
	if len(history) >= 2 {
		r.Similarity = StringSimilarity(history[len(history)-2], history[len(history)-1])
	}
	return r
}
