package harness

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// UnlimitedAttempts is the retry ceiling for transfer loops: none. A loop
// keeps retrying for as long as its run is active; only cancellation or the
// byte cap ends it.
const UnlimitedAttempts uint = 0

// errEmptyBody makes a transfer that delivered nothing wait out the retry
// delay instead of reissuing in a tight loop.
var errEmptyBody = errors.New("transfer delivered no bytes")

type transferLoop struct {
	id         int
	target     string
	source     Source
	state      *RunState
	retryDelay time.Duration
	buf        []byte
	logger     zerolog.Logger
}

func newTransferLoop(id int, target string, source Source, state *RunState, opts Options) *transferLoop {
	return &transferLoop{
		id:         id,
		target:     target,
		source:     source,
		state:      state,
		retryDelay: opts.RetryDelay,
		buf:        make([]byte, opts.ReadBufferSize),
		logger:     log.With().Str("op", "harness/loop").Int("loop", id).Logger(),
	}
}

// run issues transfers back to back until the run is cancelled. A body that
// ends without a single byte is treated as a failure and waits out the retry
// delay instead of being reissued immediately.
func (l *transferLoop) run() {
	ctx := l.state.Context()
	for ctx.Err() == nil {
		retry.Do(
			func() error { return l.transfer(ctx) },
			retry.Context(ctx),
			retry.Attempts(UnlimitedAttempts),
			retry.Delay(l.retryDelay),
			retry.DelayType(retry.FixedDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(error) bool { return ctx.Err() == nil }),
			retry.OnRetry(func(n uint, err error) {
				l.logger.Debug().Uint("attempt", n+1).Err(err).Msg("transfer failed, retrying")
			}),
		)
	}
	l.logger.Debug().Msg("loop stopped")
}

// transfer drains one response body into the shared counter. It returns nil
// at end of body so the caller reissues immediately.
func (l *transferLoop) transfer(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := l.source.Open(ctx, l.target)
	if err != nil {
		return err
	}
	defer body.Close()

	var received int64
	for {
		n, readErr := body.Read(l.buf)
		if n > 0 {
			received += int64(n)
			if !l.state.Add(int64(n)) {
				return context.Cause(ctx)
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if readErr == io.EOF {
			if received == 0 {
				return errEmptyBody
			}
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
