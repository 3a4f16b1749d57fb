package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/speedo/internal/utils"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSampleInterval = 200 * time.Millisecond
	MinSampleInterval     = 100 * time.Millisecond
	MaxSampleInterval     = 2 * time.Second
	DefaultRetryDelay     = 200 * time.Millisecond
	DefaultReadBufferSize = 64 * 1024
	MaxReadBufferSize     = 16 * 1024 * 1024
)

var ErrInvalidOptions = errors.New("invalid run options")

// Options describe one run. Zero durations and sizes take the defaults.
type Options struct {
	Target         string
	Concurrency    int
	ByteCap        int64         // 0 = unbounded
	Duration       time.Duration // 0 = until stopped or capped
	SampleInterval time.Duration
	RetryDelay     time.Duration
	ReadBufferSize int
}

// WithDefaults returns a copy with zero fields set to their defaults.
func (o Options) WithDefaults() Options {
	if o.SampleInterval == 0 {
		o.SampleInterval = DefaultSampleInterval
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.ReadBufferSize == 0 {
		o.ReadBufferSize = DefaultReadBufferSize
	}
	return o
}

func (o Options) Validate() error {
	switch {
	case o.Target == "":
		return fmt.Errorf("%w: target is required", ErrInvalidOptions)
	case o.Concurrency < utils.MinConcurrency || o.Concurrency > utils.MaxConcurrency:
		return fmt.Errorf("%w: concurrency must be between %d and %d, got %d", ErrInvalidOptions, utils.MinConcurrency, utils.MaxConcurrency, o.Concurrency)
	case o.ByteCap < 0:
		return fmt.Errorf("%w: byte cap must not be negative", ErrInvalidOptions)
	case o.Duration < 0:
		return fmt.Errorf("%w: duration must not be negative", ErrInvalidOptions)
	case o.SampleInterval < MinSampleInterval || o.SampleInterval > MaxSampleInterval:
		return fmt.Errorf("%w: sample interval must be between %s and %s", ErrInvalidOptions, MinSampleInterval, MaxSampleInterval)
	case o.RetryDelay < 0:
		return fmt.Errorf("%w: retry delay must not be negative", ErrInvalidOptions)
	case o.ReadBufferSize < 0 || o.ReadBufferSize > MaxReadBufferSize:
		return fmt.Errorf("%w: read buffer size must be between 0 and %d bytes", ErrInvalidOptions, MaxReadBufferSize)
	}
	return nil
}

// Result summarizes a finished run.
type Result struct {
	Reason         StopReason
	Total          int64
	Elapsed        time.Duration
	AvgBytesPerSec float64
}

// Harness runs at most one benchmark at a time.
type Harness struct {
	source Source
	mu     sync.Mutex
	active *Run
}

func New(source Source) *Harness {
	return &Harness{source: source}
}

// Start launches a run. A run that is still active is stopped and drained
// first so the new run starts from a clean RunState.
func (h *Harness) Start(ctx context.Context, opts Options) (*Run, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active != nil {
		h.active.Stop()
		h.active.Wait()
	}
	run := newRun(ctx, h.source, opts)
	h.active = run
	run.start()
	return run, nil
}

// Run is the handle to one active or finished benchmark.
type Run struct {
	opts      Options
	source    Source
	state     *RunState
	active    atomic.Int32
	snapshots chan Snapshot
	done      chan struct{}
	result    Result
}

func newRun(ctx context.Context, source Source, opts Options) *Run {
	return &Run{
		opts:      opts,
		source:    source,
		state:     newRunState(ctx, opts.Concurrency, opts.ByteCap),
		snapshots: make(chan Snapshot, 1),
		done:      make(chan struct{}),
	}
}

func (r *Run) start() {
	log.Info().Str("op", "harness/run").
		Str("target", r.opts.Target).
		Int("concurrency", r.opts.Concurrency).
		Int64("cap", r.opts.ByteCap).
		Dur("duration", r.opts.Duration).
		Msg("run started")

	var group errgroup.Group
	for i := range r.opts.Concurrency {
		loop := newTransferLoop(i, r.opts.Target, r.source, r.state, r.opts)
		r.active.Add(1)
		group.Go(func() error {
			defer r.active.Add(-1)
			loop.run()
			return nil
		})
	}

	var timer *time.Timer
	if r.opts.Duration > 0 {
		timer = time.AfterFunc(r.opts.Duration, func() { r.state.Stop(ErrDurationElapsed) })
	}
	loopsDone := make(chan struct{})
	go func() {
		group.Wait()
		if timer != nil {
			timer.Stop()
		}
		close(loopsDone)
	}()
	go r.sampleLoop(loopsDone)
}

func (r *Run) sampleLoop(loopsDone <-chan struct{}) {
	s := newSampler(r.state.Started())
	ticker := time.NewTicker(r.opts.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			if snap, ok := s.sample(now, r.state.Total()); ok {
				snap.ActiveLoops = int(r.active.Load())
				publish(r.snapshots, snap)
			}
		case <-loopsDone:
			// Release the context even when every loop ended on its own cause.
			r.state.Stop(ErrStopped)
			final := s.final(time.Now(), r.state.Total())
			publish(r.snapshots, final)
			r.result = Result{
				Reason:         r.state.Reason(),
				Total:          final.Total,
				Elapsed:        final.Elapsed,
				AvgBytesPerSec: final.AvgBytesPerSec,
			}
			log.Info().Str("op", "harness/run").
				Str("reason", string(r.result.Reason)).
				Int64("total", r.result.Total).
				Dur("elapsed", r.result.Elapsed).
				Msg("run finished")
			close(r.snapshots)
			close(r.done)
			return
		}
	}
}

// Snapshots delivers periodic samples and is closed after the final one.
// Only the newest unread sample is kept.
func (r *Run) Snapshots() <-chan Snapshot {
	return r.snapshots
}

// Stop requests cancellation; loops observe it within one read or retry
// delay. Use Wait to block until they have.
func (r *Run) Stop() {
	r.state.Stop(ErrStopped)
}

func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until every loop and the sampler have exited.
func (r *Run) Wait() Result {
	<-r.done
	return r.result
}

// Total is the live byte counter.
func (r *Run) Total() int64 {
	return r.state.Total()
}

func (r *Run) ActiveLoops() int {
	return int(r.active.Load())
}

