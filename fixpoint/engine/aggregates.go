package engine

import (
	"github.com/wbrown/janus-fixpoint/fixpoint"
)

// The builtin aggregate states. Each takes its contribution from the first
// input argument unless noted.

// CountState counts distinct contributing projections.
type CountState struct {
	n int
}

func NewCountState() AggregateState { return &CountState{} }

func (s *CountState) Add([]fixpoint.Value)    { s.n++ }
func (s *CountState) Remove([]fixpoint.Value) { s.n-- }
func (s *CountState) Result() (fixpoint.Value, bool) {
	if s.n <= 0 {
		return nil, false
	}
	return float64(s.n), true
}

// SumState sums the first argument.
type SumState struct {
	sum float64
	n   int
}

func NewSumState() AggregateState { return &SumState{} }

func (s *SumState) Add(args []fixpoint.Value) {
	if v, ok := fixpoint.NumberValue(args[0]); ok {
		s.sum += v
		s.n++
	}
}

func (s *SumState) Remove(args []fixpoint.Value) {
	if v, ok := fixpoint.NumberValue(args[0]); ok {
		s.sum -= v
		s.n--
	}
}

func (s *SumState) Result() (fixpoint.Value, bool) {
	if s.n <= 0 {
		return nil, false
	}
	return s.sum, true
}

// AverageState averages the first argument.
type AverageState struct {
	sum float64
	n   int
}

func NewAverageState() AggregateState { return &AverageState{} }

func (s *AverageState) Add(args []fixpoint.Value) {
	if v, ok := fixpoint.NumberValue(args[0]); ok {
		s.sum += v
		s.n++
	}
}

func (s *AverageState) Remove(args []fixpoint.Value) {
	if v, ok := fixpoint.NumberValue(args[0]); ok {
		s.sum -= v
		s.n--
	}
}

func (s *AverageState) Result() (fixpoint.Value, bool) {
	if s.n <= 0 {
		return nil, false
	}
	return s.sum / float64(s.n), true
}

// extremeState keeps a multiset of the first argument so removals of the
// current extreme fall back to the next one.
type extremeState struct {
	counts map[float64]int
	better func(a, b float64) bool
}

func NewMinState() AggregateState {
	return &extremeState{counts: make(map[float64]int), better: func(a, b float64) bool { return a < b }}
}

func NewMaxState() AggregateState {
	return &extremeState{counts: make(map[float64]int), better: func(a, b float64) bool { return a > b }}
}

func (s *extremeState) Add(args []fixpoint.Value) {
	if v, ok := fixpoint.NumberValue(args[0]); ok {
		s.counts[v]++
	}
}

func (s *extremeState) Remove(args []fixpoint.Value) {
	if v, ok := fixpoint.NumberValue(args[0]); ok {
		s.counts[v]--
		if s.counts[v] <= 0 {
			delete(s.counts, v)
		}
	}
}

func (s *extremeState) Result() (fixpoint.Value, bool) {
	found := false
	var best float64
	for v := range s.counts {
		if !found || s.better(v, best) {
			best = v
			found = true
		}
	}
	return best, found
}
