package upload

import "sync"

// batchState tracks one batch run. Every attempt on an item gets a new
// generation; updates carrying any other generation are stale and dropped,
// as is anything arriving after the item settled.
type batchState struct {
	mu          sync.Mutex
	generations []int
	progress    []float64
	outcomes    []*Outcome
	completed   int
}

func newBatchState(n int) *batchState {
	return &batchState{
		generations: make([]int, n),
		progress:    make([]float64, n),
		outcomes:    make([]*Outcome, n),
	}
}

// begin starts a new attempt on the item and returns its generation.
func (s *batchState) begin(index int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generations[index]++
	return s.generations[index]
}

// generation returns the current generation of the item.
func (s *batchState) generation(index int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.generations[index]
}

// updateProgress records fraction if it is newer than what is known for the item.
func (s *batchState) updateProgress(index, generation int, fraction float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outcomes[index] != nil || s.generations[index] != generation {
		return false
	}
	if fraction <= s.progress[index] {
		return false
	}
	s.progress[index] = fraction
	return true
}

// settle stores the terminal outcome of the item and retires its generation.
// It reports false if the item already settled or the generation is stale.
func (s *batchState) settle(generation int, outcome Outcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := outcome.Index
	if s.outcomes[index] != nil || s.generations[index] != generation {
		return false
	}
	if outcome.Succeeded() {
		s.progress[index] = 1
	}
	s.outcomes[index] = &outcome
	s.generations[index]++
	s.completed++
	return true
}

func (s *batchState) completedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.completed
}

// settledOutcomes returns the outcomes in item order. ok is false while any item is pending.
func (s *batchState) settledOutcomes() (outcomes []Outcome, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcomes = make([]Outcome, 0, len(s.outcomes))
	for _, o := range s.outcomes {
		if o == nil {
			return nil, false
		}
		outcomes = append(outcomes, *o)
	}
	return outcomes, true
}
