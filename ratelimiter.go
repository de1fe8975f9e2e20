package async

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter gates tasks to r events per second with an optional burst
// of b, built on x/time/rate's token bucket rather than a hand-rolled
// sliding window.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a RateLimiter allowing r events per second,
// bursting up to b. r must be positive. x/time/rate rejects any single
// reservation of n=1 when its burst is 0 (a Reservation is ok only if
// n <= burst, checked independent of elapsed time), so a requested
// burst <= 0 is promoted to 1 rather than producing a limiter that can
// never admit a single event: the closest achievable reading of "no
// burst beyond the steady rate" given that constraint.
func NewRateLimiter(r float64, burst int) (*RateLimiter, error) {
	if r <= 0 {
		return nil, ErrInvalidRate
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(r), burst)}, nil
}

// Ready reports whether an event could be taken right now without
// waiting.
func (rl *RateLimiter) Ready() bool {
	return rl.limiter.TokensAt(time.Now()) >= 1
}

// Wait suspends t until an event is available (or timeout elapses),
// then consumes it.
func (rl *RateLimiter) Wait(t *Task, timeout time.Duration) error {
	if t == nil {
		return ErrOutsideTask
	}
	now := time.Now()
	res := rl.limiter.ReserveN(now, 1)
	if !res.OK() {
		return ErrNegativeLength
	}
	delay := res.DelayFrom(now)
	if delay <= 0 {
		return nil
	}

	deadline, hasDeadline := deadlineFor(timeout)
	if hasDeadline && now.Add(delay).After(deadline) {
		res.CancelAt(now)
		return ErrTimeout
	}
	if err := Sleep(t, delay); err != nil {
		res.CancelAt(time.Now())
		return err
	}
	return nil
}

// Allow reports and consumes availability without suspending: true if an
// event could be taken immediately.
func (rl *RateLimiter) Allow() bool {
	return rl.limiter.Allow()
}

// SetLimit adjusts the steady-state rate. r must be positive, for the
// same reason NewRateLimiter requires it: a non-positive rate can never
// replenish tokens, wedging every future Wait/Allow call.
func (rl *RateLimiter) SetLimit(r float64) error {
	if r <= 0 {
		return ErrInvalidRate
	}
	rl.limiter.SetLimit(rate.Limit(r))
	return nil
}

// SetBurst adjusts the burst size. burst <= 0 is promoted to 1, for the
// same reason NewRateLimiter does: x/time/rate can never admit a single
// event once burst drops to 0, regardless of how long it waits.
func (rl *RateLimiter) SetBurst(burst int) {
	if burst <= 0 {
		burst = 1
	}
	rl.limiter.SetBurst(burst)
}
