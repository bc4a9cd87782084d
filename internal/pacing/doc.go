// Package pacing provides the delays placed between storefront requests and
// the backoff policies used while polling for server-side file generation.
//
// # Delays
//
//	clock := pacing.NewClock()
//	clock.Delay(ctx, time.Second)        // random wait in [500ms, 1s)
//	clock.DelayExactly(ctx, 3*time.Second)
//
// # Backoff
//
// Constant and Exponential implement Backoff. Attempt 0 uses the First field,
// which is usually zero so the first status call happens immediately:
//
//	b := pacing.Constant{First: 0, Every: 5 * time.Second}
//	b.Delay(0) // 0
//	b.Delay(3) // 5s
package pacing
