package pacing

import (
	"context"
	"sync"
	"time"
)

// Recorder is a Sleeper that records requested waits instead of sleeping.
//
// It is meant for tests:
//
//	rec := &pacing.Recorder{}
//	clock := pacing.NewClockWith(rec.Sleep, nil)
type Recorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

// Sleep records d and returns ctx.Err().
func (r *Recorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

// Waits returns a copy of the recorded waits.
func (r *Recorder) Waits() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}
