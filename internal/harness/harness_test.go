package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakySource fails every Open while failing is set.
type flakySource struct {
	inner   Source
	failing atomic.Bool
	opens   atomic.Int64
}

func (f *flakySource) Open(ctx context.Context, target string) (io.ReadCloser, error) {
	f.opens.Add(1)
	if f.failing.Load() {
		return nil, errors.New("connection refused")
	}
	return f.inner.Open(ctx, target)
}

func waitResult(t *testing.T, run *Run) Result {
	t.Helper()
	select {
	case <-run.Done():
	case <-time.After(15 * time.Second):
		t.Fatal("run did not finish")
	}
	return run.Wait()
}

// unreliableSource rejects a random share of Opens and cuts another share
// of bodies short with io.ErrUnexpectedEOF.
type unreliableSource struct {
	inner  Source
	failed atomic.Int64
	cut    atomic.Int64
}

func (u *unreliableSource) Open(ctx context.Context, target string) (io.ReadCloser, error) {
	switch rand.IntN(4) {
	case 0:
		u.failed.Add(1)
		return nil, &StatusError{StatusCode: 503, Status: "503 Service Unavailable"}
	case 1:
		body, err := u.inner.Open(ctx, target)
		if err != nil {
			return nil, err
		}
		u.cut.Add(1)
		return &truncatedBody{ReadCloser: body, remaining: rand.Int64N(256 * 1024)}, nil
	}
	return u.inner.Open(ctx, target)
}

type truncatedBody struct {
	io.ReadCloser
	remaining int64
}

func (b *truncatedBody) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		return 0, io.ErrUnexpectedEOF
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.ReadCloser.Read(p)
	b.remaining -= int64(n)
	return n, err
}

func TestRunTotalsAreMonotonic(t *testing.T) {
	const (
		byteCap = 64 * 1024 * 1024
		bufSize = 32 * 1024
	)
	for _, concurrency := range []int{1, 8, 32} {
		t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
			source := &unreliableSource{inner: &LocalSource{}}
			h := New(source)
			run, err := h.Start(context.Background(), Options{
				Target:         "local:?mb=1",
				Concurrency:    concurrency,
				ByteCap:        byteCap,
				SampleInterval: MinSampleInterval,
				RetryDelay:     time.Millisecond,
				ReadBufferSize: bufSize,
			})
			require.NoError(t, err)

			var last int64
			var snaps []Snapshot
			for snap := range run.Snapshots() {
				assert.GreaterOrEqual(t, snap.Total, last)
				last = snap.Total
				snaps = append(snaps, snap)
			}
			require.NotEmpty(t, snaps)
			final := snaps[len(snaps)-1]
			assert.True(t, final.Final)

			result := waitResult(t, run)
			assert.Equal(t, ReasonCapReached, result.Reason)
			assert.Equal(t, final.Total, result.Total)
			assert.GreaterOrEqual(t, result.Total, int64(byteCap))
			assert.Less(t, result.Total-byteCap, int64(bufSize*concurrency))
			assert.Zero(t, run.ActiveLoops())
			assert.Positive(t, source.failed.Load(), "no request was rejected")
			assert.Positive(t, source.cut.Load(), "no body was cut short")
		})
	}
}

func TestRunCapOvershootIsBounded(t *testing.T) {
	const (
		concurrency = 8
		bufSize     = 32 * 1024
		byteCap     = 20 * 1024 * 1024
	)
	h := New(&LocalSource{})
	run, err := h.Start(context.Background(), Options{
		Target:         "local:",
		Concurrency:    concurrency,
		ByteCap:        byteCap,
		ReadBufferSize: bufSize,
	})
	require.NoError(t, err)

	result := waitResult(t, run)
	assert.Equal(t, ReasonCapReached, result.Reason)
	assert.GreaterOrEqual(t, result.Total, int64(byteCap))
	assert.Less(t, result.Total-byteCap, int64(bufSize*concurrency))
}

func TestRunSurvivesFailingSource(t *testing.T) {
	source := &flakySource{inner: &LocalSource{}}
	source.failing.Store(true)

	h := New(source)
	run, err := h.Start(context.Background(), Options{
		Target:      "local:?mb=1",
		Concurrency: 4,
		RetryDelay:  5 * time.Millisecond,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return source.opens.Load() > 20 }, 5*time.Second, 5*time.Millisecond)
	assert.Zero(t, run.Total())
	assert.Equal(t, 4, run.ActiveLoops())
	select {
	case <-run.Done():
		t.Fatal("run ended on transfer errors")
	default:
	}

	source.failing.Store(false)
	require.Eventually(t, func() bool { return run.Total() > 10*1024*1024 }, 5*time.Second, 5*time.Millisecond)

	run.Stop()
	result := waitResult(t, run)
	assert.Equal(t, ReasonStopped, result.Reason)
}

func TestRunStopFreezesTotal(t *testing.T) {
	h := New(&LocalSource{})
	run, err := h.Start(context.Background(), Options{Target: "local:", Concurrency: 8})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return run.Total() > 0 }, 5*time.Second, time.Millisecond)
	run.Stop()
	result := waitResult(t, run)

	assert.Equal(t, ReasonStopped, result.Reason)
	assert.Zero(t, run.ActiveLoops())
	frozen := run.Total()
	assert.Equal(t, frozen, result.Total)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, frozen, run.Total())
}

func TestRunCancelledByCaller(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New(&LocalSource{})
	run, err := h.Start(ctx, Options{Target: "local:", Concurrency: 2})
	require.NoError(t, err)

	cancel()
	result := waitResult(t, run)
	assert.Equal(t, ReasonStopped, result.Reason)
}

func TestRunDuration(t *testing.T) {
	h := New(&LocalSource{})
	start := time.Now()
	run, err := h.Start(context.Background(), Options{
		Target:      "local:",
		Concurrency: 2,
		Duration:    150 * time.Millisecond,
	})
	require.NoError(t, err)

	result := waitResult(t, run)
	assert.Equal(t, ReasonDurationElapsed, result.Reason)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Positive(t, result.Total)
	assert.Positive(t, result.AvgBytesPerSec)
}

func TestStartReplacesActiveRun(t *testing.T) {
	h := New(&LocalSource{})
	first, err := h.Start(context.Background(), Options{Target: "local:", Concurrency: 2})
	require.NoError(t, err)

	second, err := h.Start(context.Background(), Options{Target: "local:", Concurrency: 2})
	require.NoError(t, err)

	select {
	case <-first.Done():
	default:
		t.Fatal("previous run still active")
	}
	assert.Equal(t, ReasonStopped, first.Wait().Reason)
	assert.Zero(t, first.ActiveLoops())

	require.Eventually(t, func() bool { return second.Total() > 0 }, 5*time.Second, time.Millisecond)
	second.Stop()
	waitResult(t, second)
}

func TestOptionsValidate(t *testing.T) {
	valid := Options{Target: "local:", Concurrency: 8}.WithDefaults()
	require.NoError(t, valid.Validate())

	tcs := []struct {
		name   string
		modify func(*Options)
	}{
		{name: "no target", modify: func(o *Options) { o.Target = "" }},
		{name: "zero concurrency", modify: func(o *Options) { o.Concurrency = 0 }},
		{name: "too many loops", modify: func(o *Options) { o.Concurrency = 33 }},
		{name: "negative cap", modify: func(o *Options) { o.ByteCap = -1 }},
		{name: "negative duration", modify: func(o *Options) { o.Duration = -time.Second }},
		{name: "interval too short", modify: func(o *Options) { o.SampleInterval = 10 * time.Millisecond }},
		{name: "interval too long", modify: func(o *Options) { o.SampleInterval = 5 * time.Second }},
		{name: "negative retry delay", modify: func(o *Options) { o.RetryDelay = -time.Millisecond }},
		{name: "huge read buffer", modify: func(o *Options) { o.ReadBufferSize = MaxReadBufferSize + 1 }},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			opts := valid
			tc.modify(&opts)
			assert.ErrorIs(t, opts.Validate(), ErrInvalidOptions)

			_, err := New(&LocalSource{}).Start(context.Background(), opts)
			assert.ErrorIs(t, err, ErrInvalidOptions)
		})
	}
}
