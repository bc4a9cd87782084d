package generation

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/handiism/bookshelf-downloader/internal/errs"
	"github.com/handiism/bookshelf-downloader/internal/pacing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted replays status bodies in order, repeating the last one.
type scripted struct {
	bodies   []string
	triggers int
	polls    int
}

func (s *scripted) adapter() Adapter[string] {
	return Adapter[string]{
		Trigger: func(context.Context) error {
			s.triggers++
			return nil
		},
		Poll: func(context.Context) ([]byte, error) {
			i := min(s.polls, len(s.bodies)-1)
			s.polls++
			return []byte(s.bodies[i]), nil
		},
		Decode: func(body []byte) (string, error) {
			if string(body) == "garbage" {
				return "", errors.New("not a status")
			}
			return string(body), nil
		},
		Ready: func(status string) bool { return status == "ready" },
		Failed: func(status string) (string, bool) {
			reason, ok := strings.CutPrefix(status, "error:")
			return reason, ok
		},
	}
}

func newTestPoller(max int, backoff pacing.Backoff) (*Poller, *pacing.Recorder) {
	rec := &pacing.Recorder{}
	return NewPoller(pacing.NewClockWith(rec.Sleep, nil), max, backoff, nil), rec
}

func TestRun_AlreadyReadyMakesNoCalls(t *testing.T) {
	p, rec := newTestPoller(5, pacing.Constant{Every: time.Second})
	s := &scripted{bodies: []string{"pending"}}

	job, err := Run(context.Background(), p, "epub", true, s.adapter())
	require.NoError(t, err)
	assert.Equal(t, Ready, job.Outcome)
	assert.Zero(t, s.triggers)
	assert.Zero(t, s.polls)
	assert.Empty(t, rec.Waits())
}

func TestRun_ReadyAfterTwoPending(t *testing.T) {
	p, rec := newTestPoller(60, pacing.Constant{First: 0, Every: 5 * time.Second})
	s := &scripted{bodies: []string{"queued", "processing", "ready"}}

	job, err := Run(context.Background(), p, "mobi", false, s.adapter())
	require.NoError(t, err)
	assert.Equal(t, Ready, job.Outcome)
	assert.Equal(t, 1, s.triggers)
	assert.Equal(t, 3, s.polls)
	assert.Equal(t, 3, job.Attempts)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, rec.Waits(),
		"first wait is zero and is not slept")
	assert.Equal(t, 10*time.Second, job.Elapsed)
}

func TestRun_ExhaustedAfterMaxAttempts(t *testing.T) {
	p, _ := newTestPoller(5, pacing.Constant{Every: time.Second})
	s := &scripted{bodies: []string{"pending"}}

	job, err := Run(context.Background(), p, "pdf", false, s.adapter())
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrGenerationExhausted)
	assert.Equal(t, Exhausted, job.Outcome)
	assert.Equal(t, 5, s.polls)
	assert.Contains(t, job.Reason, "5")
	assert.Contains(t, err.Error(), "gave up after 5 attempts")
}

func TestRun_TerminatesForAnyBudget(t *testing.T) {
	for _, max := range []int{1, 2, 7, 60} {
		t.Run(strconv.Itoa(max), func(t *testing.T) {
			p, _ := newTestPoller(max, pacing.Exponential{Initial: time.Millisecond, Factor: 2, Max: time.Second})
			s := &scripted{bodies: []string{"pending"}}

			job, err := Run(context.Background(), p, "epub", false, s.adapter())
			assert.ErrorIs(t, err, errs.ErrGenerationExhausted)
			assert.Equal(t, max, s.polls)
			assert.Equal(t, max, job.Attempts)
		})
	}
}

func TestRun_FailedStatus(t *testing.T) {
	p, _ := newTestPoller(10, pacing.Constant{})
	s := &scripted{bodies: []string{"pending", "error:conversion failed"}}

	job, err := Run(context.Background(), p, "epub", false, s.adapter())
	assert.ErrorIs(t, err, errs.ErrGenerationFailed)
	assert.Equal(t, Failed, job.Outcome)
	assert.Equal(t, "conversion failed", job.Reason)
	assert.Equal(t, 2, s.polls)

	var genErr *Error
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "epub", genErr.Job.Format)
}

func TestRun_UnreadableStatusFails(t *testing.T) {
	p, _ := newTestPoller(10, pacing.Constant{})
	s := &scripted{bodies: []string{"garbage"}}

	job, err := Run(context.Background(), p, "epub", false, s.adapter())
	assert.ErrorIs(t, err, errs.ErrGenerationFailed)
	assert.Equal(t, 1, s.polls)
	assert.Contains(t, job.Reason, "unreadable status")
}

func TestRun_TransportErrorFails(t *testing.T) {
	p, _ := newTestPoller(10, pacing.Constant{})
	a := (&scripted{bodies: []string{"pending"}}).adapter()
	a.Poll = func(context.Context) ([]byte, error) { return nil, errs.ErrTransport }

	job, err := Run(context.Background(), p, "epub", false, a)
	assert.ErrorIs(t, err, errs.ErrGenerationFailed)
	assert.Equal(t, Failed, job.Outcome)
	assert.Equal(t, 1, job.Attempts)
}

func TestRun_TriggerErrorFails(t *testing.T) {
	p, _ := newTestPoller(10, pacing.Constant{})
	s := &scripted{bodies: []string{"ready"}}
	a := s.adapter()
	a.Trigger = func(context.Context) error { return errs.ErrTransport }

	job, err := Run(context.Background(), p, "epub", false, a)
	assert.ErrorIs(t, err, errs.ErrGenerationFailed)
	assert.Zero(t, s.polls)
	assert.Contains(t, job.Reason, "starting generation")
}

func TestRun_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, _ := newTestPoller(10, pacing.Constant{Every: time.Second})
	s := &scripted{bodies: []string{"pending"}}

	_, err := Run(ctx, p, "epub", false, s.adapter())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAll(t *testing.T) {
	ready := func(s string) bool { return s == "READY" }

	assert.True(t, All([]string{"READY", "READY"}, ready))
	assert.False(t, All([]string{"READY", "PREPARING"}, ready))
	assert.False(t, All([]string{}, ready))
}
