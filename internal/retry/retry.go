package retry

import (
	"context"
	"errors"
	"time"
)

// Outcome is reported to the observer after every attempt.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeRetry     Outcome = "retry"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeAborted   Outcome = "aborted"
)

// Attempt describes one call made by Do.
type Attempt struct {
	Operation string
	Number    int
	Outcome   Outcome
	Delay     time.Duration
	Err       error
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Observer receives attempt outcomes.
type Observer func(Attempt)

// Policy is a bounded retry with exponential backoff.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Retryable   func(error) bool
	Sleep       Sleeper
	Observe     Observer
}

// ErrInvalidPolicy is returned for a policy without attempts.
var ErrInvalidPolicy = errors.New("retry: max attempts must be positive")

// SleepContext is the production sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Delay returns the wait before attempt n+1, n starting at 1.
func (p Policy) Delay(n int) time.Duration {
	if p.BaseDelay <= 0 || n < 1 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.BaseDelay)
	for i := 1; i < n; i++ {
		delay *= mult
	}
	out := time.Duration(delay)
	if p.MaxDelay > 0 && out > p.MaxDelay {
		out = p.MaxDelay
	}
	return out
}

// Do runs fn until it succeeds, returns a non-retryable error, or attempts run out.
// The last error is returned unchanged.
func (p Policy) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		return ErrInvalidPolicy
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var err error
	for n := 1; n <= p.MaxAttempts; n++ {
		err = fn(ctx)
		if err == nil {
			p.observe(Attempt{Operation: operation, Number: n, Outcome: OutcomeSuccess})
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			p.observe(Attempt{Operation: operation, Number: n, Outcome: OutcomeAborted, Err: err})
			return err
		}
		if n == p.MaxAttempts {
			p.observe(Attempt{Operation: operation, Number: n, Outcome: OutcomeExhausted, Err: err})
			return err
		}
		delay := p.Delay(n)
		p.observe(Attempt{Operation: operation, Number: n, Outcome: OutcomeRetry, Delay: delay, Err: err})
		if serr := sleep(ctx, delay); serr != nil {
			return err
		}
	}
	return err
}

func (p Policy) observe(a Attempt) {
	if p.Observe != nil {
		p.Observe(a)
	}
}
