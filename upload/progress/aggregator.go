// Package progress combines per-item upload progress into a single overall percentage.
package progress

import (
	"math"
	"sync"
	"time"
)

const (
	// CapBeforeComplete is the highest percentage reported while any item is still pending
	// or the batch result is not yet assembled.
	CapBeforeComplete = 95

	// Complete is reported exactly once, after every item settled.
	Complete = 100
)

// ChangeFunc receives the overall percentage (0-100) whenever it increases.
type ChangeFunc func(percent int)

// Aggregator tracks the latest fraction of every item in a batch and derives
// the weighted overall percentage from them. It is safe for concurrent use.
type Aggregator struct {
	weights   []float64
	fractions []float64
	settled   []bool
	onChange  ChangeFunc

	settledCount int
	reported     int
	completed    bool
	startTime    time.Time

	mu sync.Mutex

	// notified guards callback ordering; concurrent updates may finish recomputing out of order.
	notified int
	notifyMu sync.Mutex
}

// NewAggregator creates an aggregator for len(weights) items.
// Weights are normalised so they sum to 1; a nil or all-zero weight list means equal weights.
func NewAggregator(weights []float64, onChange ChangeFunc) *Aggregator {
	return &Aggregator{
		weights:   normalize(weights),
		fractions: make([]float64, len(weights)),
		settled:   make([]bool, len(weights)),
		onChange:  onChange,
		startTime: time.Now(),
	}
}

// EqualWeights returns n weights of 1/n each.
func EqualWeights(n int) []float64 {
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1 / float64(n)
	}
	return weights
}

// SizeWeights weights every item by its byte size.
// Falls back to equal weights when any size is unknown (zero or negative).
func SizeWeights(sizes []int64) []float64 {
	var total int64
	for _, size := range sizes {
		if size <= 0 {
			return EqualWeights(len(sizes))
		}
		total += size
	}

	weights := make([]float64, len(sizes))
	for i, size := range sizes {
		weights[i] = float64(size) / float64(total)
	}
	return weights
}

// Update records the latest fraction for the item at index.
// A fraction lower than the previously recorded one is ignored, so overall progress never moves backward.
// Updates for settled items, unknown indexes and completed batches are dropped.
func (a *Aggregator) Update(index int, fraction float64) {
	a.mu.Lock()
	if a.completed || index < 0 || index >= len(a.fractions) || a.settled[index] {
		a.mu.Unlock()
		return
	}

	fraction = clampFraction(fraction)
	if fraction <= a.fractions[index] {
		a.mu.Unlock()
		return
	}
	a.fractions[index] = fraction

	percent, changed := a.recomputeLocked()
	a.mu.Unlock()

	if changed {
		a.notify(percent)
	}
}

// Settle marks the item at index as terminal. Its fraction counts as fully done,
// but the overall percentage stays capped until Finish is called.
// Returns false if the item was already settled.
func (a *Aggregator) Settle(index int) bool {
	a.mu.Lock()
	if a.completed || index < 0 || index >= len(a.settled) || a.settled[index] {
		a.mu.Unlock()
		return false
	}

	a.settled[index] = true
	a.settledCount++
	a.fractions[index] = 1

	percent, changed := a.recomputeLocked()
	a.mu.Unlock()

	if changed {
		a.notify(percent)
	}
	return true
}

// Finish reports 100% once every item has settled.
// It returns false (and reports nothing) while items are pending or if it already fired.
func (a *Aggregator) Finish() bool {
	a.mu.Lock()
	if a.completed || a.settledCount != len(a.settled) {
		a.mu.Unlock()
		return false
	}
	a.completed = true
	a.reported = Complete
	a.mu.Unlock()

	a.notify(Complete)
	return true
}

// Percent returns the last reported overall percentage.
func (a *Aggregator) Percent() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reported
}

// Snapshot returns a copy of the current aggregate state.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Snapshot{
		Percent:      a.reported,
		SettledItems: a.settledCount,
		TotalItems:   len(a.settled),
		Completed:    a.completed,
		ElapsedTime:  time.Since(a.startTime),
	}
}

// Snapshot is an immutable view of an aggregator.
type Snapshot struct {
	Percent      int
	SettledItems int
	TotalItems   int
	Completed    bool
	ElapsedTime  time.Duration
}

// recomputeLocked must be called with the lock held.
func (a *Aggregator) recomputeLocked() (int, bool) {
	var sum float64
	for i, fraction := range a.fractions {
		sum += fraction * a.weights[i]
	}

	percent := int(math.Round(sum * 100))
	if percent > CapBeforeComplete {
		percent = CapBeforeComplete
	}
	if percent <= a.reported {
		return a.reported, false
	}

	a.reported = percent
	return percent, true
}

func (a *Aggregator) notify(percent int) {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	if percent <= a.notified {
		return
	}
	a.notified = percent
	if a.onChange != nil {
		a.onChange(percent)
	}
}

func normalize(weights []float64) []float64 {
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total == 0 {
		return EqualWeights(len(weights))
	}

	normalized := make([]float64, len(weights))
	for i, w := range weights {
		if w > 0 {
			normalized[i] = w / total
		}
	}
	return normalized
}

func clampFraction(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
