package pacing

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Clock produces the waits used between storefront requests.
//
// Delay waits a jittered duration in [d/2, d) so consecutive requests do not
// arrive on a fixed beat. DelayExactly waits precisely d and is used where a
// storefront expects a minimum pause, e.g. after visiting a login form.
//
// Example:
//
//	clock := pacing.NewClock()
//	if err := clock.Delay(ctx, time.Second); err != nil {
//	    return err
//	}
type Clock struct {
	sleep  Sleeper
	jitter func(n int64) int64
}

// NewClock returns a Clock backed by real timers.
func NewClock() *Clock {
	return NewClockWith(nil, nil)
}

// NewClockWith returns a Clock with a custom sleeper and jitter source.
//
// A nil sleep uses real timers; a nil jitter uses math/rand/v2. Tests pass a
// recording sleeper so nothing actually waits.
func NewClockWith(sleep Sleeper, jitter func(n int64) int64) *Clock {
	if sleep == nil {
		sleep = sleepContext
	}
	if jitter == nil {
		jitter = rand.Int64N
	}
	return &Clock{sleep: sleep, jitter: jitter}
}

// Delay waits a random duration in [d/2, d).
func (c *Clock) Delay(ctx context.Context, d time.Duration) error {
	return c.DelayExactly(ctx, c.Jittered(d))
}

// DelayExactly waits d. Non-positive durations return immediately.
func (c *Clock) DelayExactly(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return c.sleep(ctx, d)
}

// Jittered maps d onto [d/2, d).
func (c *Clock) Jittered(d time.Duration) time.Duration {
	half := int64(d) / 2
	if half <= 0 {
		return d
	}
	return time.Duration(half + c.jitter(half))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff yields the wait before a given zero-based poll attempt.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// Constant waits First before attempt 0 and Every before each later attempt.
type Constant struct {
	First time.Duration
	Every time.Duration
}

// Delay implements Backoff.
func (b Constant) Delay(attempt int) time.Duration {
	if attempt == 0 {
		return b.First
	}
	return b.Every
}

// Exponential waits First before attempt 0, then Initial*Factor^(attempt-1)
// capped at Max (when Max > 0). Without Max, values past the range of
// time.Duration saturate at its maximum.
type Exponential struct {
	First   time.Duration
	Initial time.Duration
	Factor  float64
	Max     time.Duration
}

// Delay implements Backoff.
func (b Exponential) Delay(attempt int) time.Duration {
	if attempt == 0 {
		return b.First
	}
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}
	d := time.Duration(math.MaxInt64)
	if f := float64(b.Initial) * math.Pow(factor, float64(attempt-1)); f < math.MaxInt64 {
		d = time.Duration(f)
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}
