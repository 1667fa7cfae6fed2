// Package limiter runs an ordered list of tasks with a fixed maximum number in flight.
//
// Tasks are admitted strictly in submission order; a task is admitted as soon as any
// running task settles. Every task settles into a Settled value, failures included,
// so one broken task never aborts its siblings.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the number of tasks run at once when the caller does not choose.
const DefaultConcurrency = 5

// ErrInvalidConcurrency is returned for a non-positive concurrency cap.
var ErrInvalidConcurrency = errors.New("concurrency must be a positive integer")

// SlotState is the lifecycle of a single task inside a run.
type SlotState int

const (
	// Idle tasks have not been admitted yet.
	Idle SlotState = iota
	// Admitted tasks hold a slot and are running.
	Admitted
	// Settled tasks have released their slot and produced an outcome.
	Settled
)

func (s SlotState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Admitted:
		return "admitted"
	case Settled:
		return "settled"
	default:
		return fmt.Sprintf("SlotState(%d)", int(s))
	}
}

// Task is a unit of work run by the limiter.
type Task[T any] func(ctx context.Context) (T, error)

// Outcome is the settled result of one task, indexed by its submission position.
// Err == nil means the task was fulfilled with Value.
type Outcome[T any] struct {
	Index int
	Value T
	Err   error
}

// Fulfilled reports whether the task succeeded.
func (o Outcome[T]) Fulfilled() bool {
	return o.Err == nil
}

// StateHook observes slot transitions. It is called synchronously and must not block.
type StateHook func(index int, state SlotState)

// Limiter bounds the number of tasks in flight. A single Limiter may be shared by
// concurrent runs, in which case the cap applies across all of them.
type Limiter struct {
	max int
	sem *semaphore.Weighted

	mu       sync.Mutex
	inFlight int
	peak     int
}

// New creates a Limiter admitting at most max tasks at a time.
func New(max int) (*Limiter, error) {
	if max <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidConcurrency, max)
	}

	return &Limiter{
		max: max,
		sem: semaphore.NewWeighted(int64(max)),
	}, nil
}

// Max returns the concurrency cap.
func (l *Limiter) Max() int {
	return l.max
}

// InFlight returns the number of currently admitted tasks.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

// Peak returns the highest number of tasks that were ever in flight at once.
func (l *Limiter) Peak() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peak
}

func (l *Limiter) admit() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.inFlight++
	if l.inFlight > l.peak {
		l.peak = l.inFlight
	}
}

func (l *Limiter) release() {
	l.mu.Lock()
	l.inFlight--
	l.mu.Unlock()

	l.sem.Release(1)
}

// RunOption customises a single run.
type RunOption func(*runOptions)

type runOptions struct {
	hook StateHook
}

// WithStateHook registers a callback for every slot transition of the run.
func WithStateHook(hook StateHook) RunOption {
	return func(o *runOptions) {
		o.hook = hook
	}
}

// Run executes tasks through l and blocks until every task settled.
// The returned slice has one Outcome per task, in submission order.
//
// If ctx is cancelled, tasks that were not admitted yet settle with ctx.Err() without running.
// A panicking task settles with an error.
func Run[T any](ctx context.Context, l *Limiter, tasks []Task[T], opts ...RunOption) []Outcome[T] {
	options := runOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	outcomes := make([]Outcome[T], len(tasks))
	if len(tasks) == 0 {
		return outcomes
	}

	slots := newSlotTable(len(tasks), options.hook)
	var wg sync.WaitGroup

	for i, task := range tasks {
		outcomes[i].Index = i

		// Acquire blocks until a slot frees up; waiters are served FIFO,
		// so admission follows submission order.
		if err := l.sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(tasks); j++ {
				outcomes[j] = Outcome[T]{Index: j, Err: err}
				slots.settle(j)
			}
			break
		}

		l.admit()
		slots.admit(i)

		wg.Add(1)
		go func(index int, task Task[T]) {
			defer wg.Done()
			defer l.release()
			defer slots.settle(index)

			outcomes[index] = runTask(ctx, index, task)
		}(i, task)
	}

	wg.Wait()
	return outcomes
}

func runTask[T any](ctx context.Context, index int, task Task[T]) (outcome Outcome[T]) {
	outcome.Index = index
	defer func() {
		if p := recover(); p != nil {
			outcome = Outcome[T]{Index: index, Err: fmt.Errorf("task %d panicked: %v", index, p)}
		}
	}()

	if task == nil {
		outcome.Err = fmt.Errorf("task %d is nil", index)
		return outcome
	}

	outcome.Value, outcome.Err = task(ctx)
	return outcome
}

// slotTable holds the per-run state of every task.
type slotTable struct {
	mu     sync.Mutex
	states []SlotState
	hook   StateHook
}

func newSlotTable(n int, hook StateHook) *slotTable {
	return &slotTable{
		states: make([]SlotState, n),
		hook:   hook,
	}
}

func (t *slotTable) admit(index int) {
	t.transition(index, Idle, Admitted)
}

func (t *slotTable) settle(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.states[index] == Settled {
		return
	}
	t.set(index, Settled)
}

func (t *slotTable) transition(index int, from, to SlotState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.states[index] != from {
		return
	}
	t.set(index, to)
}

// set must be called with the lock held.
func (t *slotTable) set(index int, state SlotState) {
	t.states[index] = state
	if t.hook != nil {
		t.hook(index, state)
	}
}
