package harness

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

var (
	ErrStopped         = errors.New("run stopped")
	ErrCapReached      = errors.New("byte cap reached")
	ErrDurationElapsed = errors.New("run duration elapsed")
)

// StopReason says why a run ended.
type StopReason string

const (
	ReasonStopped         StopReason = "stopped"
	ReasonCapReached      StopReason = "cap-reached"
	ReasonDurationElapsed StopReason = "duration-elapsed"
)

// RunState is shared by every loop of one run. It is created fresh for each
// run and never reused.
type RunState struct {
	total       atomic.Int64
	capReached  atomic.Bool
	start       time.Time
	byteCap     int64
	concurrency int

	ctx    context.Context
	cancel context.CancelCauseFunc
}

func newRunState(parent context.Context, concurrency int, byteCap int64) *RunState {
	ctx, cancel := context.WithCancelCause(parent)
	return &RunState{
		start:       time.Now(),
		byteCap:     byteCap,
		concurrency: concurrency,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Add records n received bytes and reports whether the run should keep
// pulling. The loop whose increment crosses the cap cancels the run.
func (s *RunState) Add(n int64) bool {
	total := s.total.Add(n)
	if s.byteCap > 0 && total >= s.byteCap {
		if s.capReached.CompareAndSwap(false, true) {
			s.cancel(ErrCapReached)
		}
		return false
	}
	return true
}

func (s *RunState) Total() int64 {
	return s.total.Load()
}

func (s *RunState) Stop(cause error) {
	s.cancel(cause)
}

func (s *RunState) Context() context.Context {
	return s.ctx
}

func (s *RunState) Started() time.Time {
	return s.start
}

// Reason maps the cancellation cause to a stop reason. Cancellation of the
// caller's context counts as a stop.
func (s *RunState) Reason() StopReason {
	switch cause := context.Cause(s.ctx); {
	case errors.Is(cause, ErrCapReached):
		return ReasonCapReached
	case errors.Is(cause, ErrDurationElapsed):
		return ReasonDurationElapsed
	default:
		return ReasonStopped
	}
}
