package harness

import "time"

// MinSampleGap is the shortest interval the sampler divides by. Closer
// ticks are skipped.
const MinSampleGap = time.Millisecond

// Snapshot is one published throughput sample.
type Snapshot struct {
	Total          int64
	Delta          int64
	Interval       time.Duration
	Elapsed        time.Duration
	BytesPerSec    float64
	BitsPerSec     float64
	AvgBytesPerSec float64
	ActiveLoops    int
	Final          bool
}

// sampler turns successive counter readings into rates. Times must carry a
// monotonic reading (time.Now does) so wall-clock jumps cannot skew a rate.
type sampler struct {
	start     time.Time
	lastAt    time.Time
	lastTotal int64
	lastRate  float64
}

func newSampler(start time.Time) *sampler {
	return &sampler{start: start, lastAt: start}
}

func (s *sampler) sample(now time.Time, total int64) (Snapshot, bool) {
	interval := now.Sub(s.lastAt)
	if interval < MinSampleGap {
		return Snapshot{}, false
	}
	delta := max(total-s.lastTotal, 0)
	rate := float64(delta) / interval.Seconds()
	s.lastAt, s.lastTotal, s.lastRate = now, total, rate
	return s.snapshot(now, total, delta, interval, rate), true
}

// final always yields a snapshot. When the last tick was too recent the
// previous instantaneous rate is carried over.
func (s *sampler) final(now time.Time, total int64) Snapshot {
	if snap, ok := s.sample(now, total); ok {
		snap.Final = true
		return snap
	}
	snap := s.snapshot(now, total, 0, 0, s.lastRate)
	snap.Final = true
	return snap
}

func (s *sampler) snapshot(now time.Time, total, delta int64, interval time.Duration, rate float64) Snapshot {
	elapsed := now.Sub(s.start)
	var avg float64
	if elapsed >= MinSampleGap {
		avg = float64(total) / elapsed.Seconds()
	}
	return Snapshot{
		Total:          total,
		Delta:          delta,
		Interval:       interval,
		Elapsed:        elapsed,
		BytesPerSec:    rate,
		BitsPerSec:     rate * 8,
		AvgBytesPerSec: avg,
	}
}

// publish hands the newest snapshot to the consumer without ever blocking:
// an unread older snapshot is replaced.
func publish(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
