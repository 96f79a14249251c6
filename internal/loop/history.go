package loop

import "encoding/json"

// History capacity bounds. MinHistoryCap covers the widest window the
// evaluator reads: four entries for oscillation, or the current output
// plus the three before it for convergence.
const (
	DefaultHistoryCap = 32
	MinHistoryCap     = 5
)

// History is a fixed-capacity ring of loop outputs, oldest first.
// It is not safe for concurrent use.
type History struct {
	buf   []string
	start int
	n     int
	total int
}

// NewHistory returns an empty history holding at most capacity outputs.
// Capacities below MinHistoryCap are raised to it.
func NewHistory(capacity int) *History {
	if capacity < MinHistoryCap {
		capacity = MinHistoryCap
	}
	return &History{buf: make([]string, capacity)}
}

// Append adds an output, overwriting the oldest once full.
func (h *History) Append(output string) {
	h.total++
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = output
		h.n++
		return
	}
	h.buf[h.start] = output
	h.start = (h.start + 1) % len(h.buf)
}

// Len is the number of retained outputs.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return h.n
}

// Total is the number of outputs ever appended.
func (h *History) Total() int {
	if h == nil {
		return 0
	}
	return h.total
}

// Cap is the retention limit.
func (h *History) Cap() int {
	if h == nil {
		return 0
	}
	return len(h.buf)
}

// The read methods treat a nil History as empty.

// Values returns a copy of the retained outputs, oldest first.
func (h *History) Values() []string {
	if h == nil {
		return []string{}
	}
	out := make([]string, h.n)
	for i := range h.n {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Last returns the most recent output.
func (h *History) Last() (string, bool) {
	if h == nil || h.n == 0 {
		return "", false
	}
	return h.buf[(h.start+h.n-1)%len(h.buf)], true
}

func (h *History) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Values())
}
