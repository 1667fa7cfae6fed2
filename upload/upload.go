// Package upload runs batches of photo uploads under a concurrency cap,
// with per-item timeouts, aggregated progress and a partial-failure-aware result.
package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/photoshelf/go-uploadutils/payload"
	"github.com/photoshelf/go-uploadutils/transport"
	"github.com/photoshelf/go-uploadutils/upload/limiter"
	"github.com/photoshelf/go-uploadutils/upload/progress"
	"github.com/photoshelf/go-uploadutils/upload/timeout"
)

// Engine uploads batches of payloads through a transport. It keeps no state
// between runs, so one Engine can serve concurrent Run calls.
type Engine struct {
	transport transport.Transport
	logger    log.Logger
	limiter   *limiter.Limiter
	tracker   analytics.Tracker
	newID     func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLimiter makes every run share l, capping in-flight uploads across
// concurrent batches. Config.Concurrency is ignored then.
func WithLimiter(l *limiter.Limiter) Option {
	return func(e *Engine) {
		e.limiter = l
	}
}

// WithTracker enables analytics events for every run.
func WithTracker(tracker analytics.Tracker) Option {
	return func(e *Engine) {
		e.tracker = tracker
	}
}

// NewEngine ...
func NewEngine(t transport.Transport, logger log.Logger, opts ...Option) *Engine {
	e := &Engine{
		transport: t,
		logger:    logger,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run uploads payloads and blocks until every item settled.
//
// Configuration problems, including an empty batch, fail with an error wrapping
// ErrInvalidConfig before anything is uploaded. Otherwise the result is always
// returned; the error is a *BatchError when some (ErrPartialFailure) or all
// (ErrAllFailed) uploads failed.
func (e *Engine) Run(ctx context.Context, payloads []payload.Payload, cfg Config) (*Result, error) {
	if len(payloads) == 0 {
		return nil, ErrEmptyBatch
	}
	if err := cfg.validate(e.limiter != nil); err != nil {
		return nil, err
	}
	for i, p := range payloads {
		if p == nil {
			return nil, fmt.Errorf("%w: payload %d is nil", ErrInvalidConfig, i)
		}
	}

	itemTimeout, err := cfg.ItemTimeout()
	if err != nil {
		return nil, err
	}

	lim := e.limiter
	if lim == nil {
		lim, err = limiter.New(cfg.Concurrency)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	run := e.newRun(payloads, cfg, itemTimeout)
	e.logger.Infof("Uploading %d photos (%s), concurrency: %d, timeout per item: %s",
		len(payloads), units.HumanSizeWithPrecision(float64(run.size), 3), lim.Max(), itemTimeout)
	e.logger.Debugf("Batch ID: %s", run.id)

	tasks := make([]limiter.Task[transport.Response], len(payloads))
	for i := range payloads {
		tasks[i] = e.newTask(run, i)
	}

	outcomes := limiter.Run(ctx, lim, tasks, limiter.WithStateHook(run.onSlotState))

	// Items that never ran or whose task did not settle by itself.
	for _, o := range outcomes {
		run.settle(run.state.generation(o.Index), newOutcome(o.Index, o.Value, o.Err, 0))
	}

	return run.finish()
}

func (e *Engine) newTask(run *batchRun, index int) limiter.Task[transport.Response] {
	p := run.payloads[index]
	return func(ctx context.Context) (transport.Response, error) {
		generation := run.state.begin(index)
		startTime := time.Now()

		resp, err := timeout.Guard(ctx, run.itemTimeout, func(ctx context.Context) (transport.Response, error) {
			return e.transport.Upload(ctx, p, run.progressFunc(index, generation))
		})

		run.settle(generation, newOutcome(index, resp, err, time.Since(startTime)))
		return resp, err
	}
}

func (e *Engine) newRun(payloads []payload.Payload, cfg Config, itemTimeout time.Duration) *batchRun {
	weights := progress.EqualWeights(len(payloads))
	if cfg.WeightBySize {
		weights = progress.SizeWeights(payload.Sizes(payloads))
	}

	id := e.newID()
	return &batchRun{
		id:          id,
		payloads:    payloads,
		size:        payload.TotalSize(payloads),
		itemTimeout: itemTimeout,
		state:       newBatchState(len(payloads)),
		aggregator:  progress.NewAggregator(weights, progress.ChangeFunc(cfg.OnOverallProgress)),
		stats:       progress.NewStats(),
		tracker:     newBatchTracker(e.tracker, id),
		logger:      e.logger,
		startTime:   time.Now(),
	}
}

func newOutcome(index int, resp transport.Response, err error, d time.Duration) Outcome {
	if err != nil {
		return Outcome{Index: index, Reason: classify(err), Err: err, Duration: d}
	}
	return Outcome{Index: index, Response: resp, Duration: d}
}

type batchRun struct {
	id          string
	payloads    []payload.Payload
	size        int64
	itemTimeout time.Duration
	state       *batchState
	aggregator  *progress.Aggregator
	stats       *progress.Stats
	tracker     batchTracker
	logger      log.Logger
	startTime   time.Time
}

func (r *batchRun) progressFunc(index, generation int) transport.ProgressFunc {
	return func(loaded, total int64) {
		if total <= 0 {
			return
		}
		fraction := float64(loaded) / float64(total)
		if fraction > 1 {
			fraction = 1
		}
		if r.state.updateProgress(index, generation, fraction) {
			r.aggregator.Update(index, fraction)
		}
	}
}

func (r *batchRun) onSlotState(index int, state limiter.SlotState) {
	r.logger.TDebugf("Upload #%d %s", index, state)
}

func (r *batchRun) settle(generation int, outcome Outcome) {
	if !r.state.settle(generation, outcome) {
		return
	}
	r.aggregator.Settle(outcome.Index)
	r.stats.Update(outcome.Duration, outcome.Succeeded())

	p := r.payloads[outcome.Index]
	if outcome.Succeeded() {
		r.logger.Debugf("Uploaded #%d %s (%s) in %s", outcome.Index, p.Name(),
			units.HumanSizeWithPrecision(float64(p.Size()), 3), outcome.Duration.Round(time.Millisecond))
		return
	}

	r.logger.Warnf("Failed to upload #%d %s: %s: %s", outcome.Index, p.Name(), outcome.Reason, outcome.Err)
	r.tracker.logItemFailed(Failure{Index: outcome.Index, Reason: outcome.Reason, Err: outcome.Err})
}

func (r *batchRun) finish() (*Result, error) {
	outcomes, ok := r.state.settledOutcomes()
	if !ok {
		return nil, fmt.Errorf("batch %s finished with %d of %d items settled", r.id, r.state.completedCount(), len(r.payloads))
	}

	result, err := newResult(r.id, outcomes)
	result.Duration = time.Since(r.startTime)
	r.aggregator.Finish()

	r.logger.Debugf("Average upload time: %s, slowest: %s",
		r.stats.Average().Round(time.Millisecond), r.stats.Slowest().Round(time.Millisecond))
	switch result.Status {
	case StatusAllSucceeded:
		r.logger.Donef("Uploaded %d photos in %s", len(result.Succeeded), result.Duration.Round(time.Millisecond))
	case StatusPartial:
		r.logger.Warnf("%d of %d uploads failed", len(result.Failed), result.Total())
	case StatusAllFailed:
		r.logger.Errorf("All %d uploads failed", len(result.Failed))
	}

	r.tracker.logBatchUploaded(result, result.Duration, r.size)

	return result, err
}
