package generation

import (
	"context"
	"fmt"

	"github.com/handiism/bookshelf-downloader/internal/pacing"
	"go.uber.org/zap"
)

// Adapter supplies the storefront side of one poll sequence.
//
// Trigger starts generation and may be nil when the storefront needs no
// explicit start. Poll performs one status call and Decode turns its body
// into a status value S. Ready and Failed classify a decoded status; a
// status that is neither keeps the poll going, so "queued" and "processing"
// vocabularies need no special handling. Failed may be nil.
type Adapter[S any] struct {
	Trigger func(ctx context.Context) error
	Poll    func(ctx context.Context) ([]byte, error)
	Decode  func(body []byte) (S, error)
	Ready   func(status S) bool
	Failed  func(status S) (reason string, failed bool)
}

// Poller runs adapters with a fixed attempt budget and backoff policy.
//
// Example:
//
//	p := generation.NewPoller(clock, 60, pacing.Constant{Every: 5 * time.Second}, logger)
//	job, err := generation.Run(ctx, p, "epub", false, adapter)
//	if err != nil {
//	    return err // job.Outcome is Failed or Exhausted
//	}
type Poller struct {
	clock       *pacing.Clock
	maxAttempts int
	backoff     pacing.Backoff
	logger      *zap.Logger
}

// NewPoller creates a Poller. A nil clock uses real timers and a nil logger
// disables logging. maxAttempts below 1 is treated as 1.
func NewPoller(clock *pacing.Clock, maxAttempts int, backoff pacing.Backoff, logger *zap.Logger) *Poller {
	if clock == nil {
		clock = pacing.NewClock()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if backoff == nil {
		backoff = pacing.Constant{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{clock: clock, maxAttempts: maxAttempts, backoff: backoff, logger: logger}
}

// MaxAttempts returns the attempt budget.
func (p *Poller) MaxAttempts() int {
	return p.maxAttempts
}

// Run drives one format to a terminal outcome.
//
// An already ready format returns immediately with no calls. Otherwise
// Trigger runs once, then each attempt waits the backoff delay and polls.
// A transport failure on Trigger or Poll, an undecodable body, or a Failed
// status ends the job as Failed. After MaxAttempts non-ready statuses the job
// ends Exhausted. Run always returns the job; err is non-nil unless it is Ready.
// Context cancellation is returned as is.
func Run[S any](ctx context.Context, p *Poller, format string, alreadyReady bool, a Adapter[S]) (*Job, error) {
	job := &Job{Format: format}
	if alreadyReady {
		job.Outcome = Ready
		return job, nil
	}

	logger := p.logger.With(zap.String("format", format))

	if a.Trigger != nil {
		if err := a.Trigger(ctx); err != nil {
			if ctx.Err() != nil {
				return job, ctx.Err()
			}
			return fail(job, fmt.Sprintf("starting generation: %v", err))
		}
	}

	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		job.NextDelay = p.backoff.Delay(attempt)
		if err := p.clock.DelayExactly(ctx, job.NextDelay); err != nil {
			return job, err
		}
		job.Elapsed += job.NextDelay

		body, err := a.Poll(ctx)
		job.Attempts++
		if err != nil {
			if ctx.Err() != nil {
				return job, ctx.Err()
			}
			return fail(job, fmt.Sprintf("status call: %v", err))
		}

		status, err := a.Decode(body)
		if err != nil {
			return fail(job, fmt.Sprintf("unreadable status: %v", err))
		}
		if a.Ready(status) {
			job.Outcome = Ready
			logger.Debug("generation ready", zap.Int("attempts", job.Attempts))
			return job, nil
		}
		if a.Failed != nil {
			if reason, failed := a.Failed(status); failed {
				return fail(job, reason)
			}
		}
		logger.Debug("generation pending", zap.Int("attempt", job.Attempts))
	}

	job.Outcome = Exhausted
	job.Reason = fmt.Sprintf("gave up after %d attempts", job.Attempts)
	return job, job.Err()
}

func fail(job *Job, reason string) (*Job, error) {
	job.Outcome = Failed
	job.Reason = reason
	return job, job.Err()
}

// All reports whether statuses is non-empty and every element satisfies ready.
//
// Storefronts that split a file into parts use it to report readiness only
// when every part is ready.
func All[T any](statuses []T, ready func(T) bool) bool {
	if len(statuses) == 0 {
		return false
	}
	for _, s := range statuses {
		if !ready(s) {
			return false
		}
	}
	return true
}
