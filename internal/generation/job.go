package generation

import (
	"fmt"
	"time"

	"github.com/handiism/bookshelf-downloader/internal/errs"
)

// Outcome is the state of a Job.
type Outcome int

const (
	// Pending means the job has not reached a terminal outcome.
	Pending Outcome = iota

	// Ready means the file can be downloaded.
	Ready

	// Failed means the storefront reported an unrecoverable error.
	Failed

	// Exhausted means the attempt budget ran out before readiness.
	Exhausted
)

func (o Outcome) String() string {
	switch o {
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	case Exhausted:
		return "exhausted"
	default:
		return "pending"
	}
}

// Job tracks one poll sequence for one format.
type Job struct {
	// Format is the format tag being prepared.
	Format string

	// Attempts counts status calls made so far.
	Attempts int

	// Elapsed is the total time spent waiting between polls.
	Elapsed time.Duration

	// NextDelay is the wait before the next status call.
	NextDelay time.Duration

	Outcome Outcome

	// Reason explains Failed and Exhausted outcomes.
	Reason string
}

// Done reports whether the job reached a terminal outcome.
func (j *Job) Done() bool {
	return j.Outcome != Pending
}

// Err returns nil for ready jobs and an *Error otherwise.
func (j *Job) Err() error {
	if j.Outcome == Ready {
		return nil
	}
	return &Error{Job: *j}
}

// Error reports a job that ended Failed or Exhausted.
type Error struct {
	Job Job
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Job.Format, e.Job.Outcome, e.Job.Reason)
}

// Unwrap returns errs.ErrGenerationExhausted or errs.ErrGenerationFailed.
func (e *Error) Unwrap() error {
	if e.Job.Outcome == Exhausted {
		return errs.ErrGenerationExhausted
	}
	return errs.ErrGenerationFailed
}
