// Package retry repeats failing operations with exponential backoff.
package retry

import (
	"time"

	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"
)

var log = logging.MustGetLogger("retry")

// ErrThresholdReached is returned when retries run past the threshold.
var ErrThresholdReached = errors.New("threshold timeout has been reached")

// ErrAttemptsExhausted is returned when the attempt limit is hit.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Func is an operation to retry.
type Func func() error

// Retrier retries a Func until it succeeds, fails with a whitelisted error,
// or runs out of time or attempts.
type Retrier struct {
	exponentialBackoff time.Duration
	exponentialFactor  uint32
	threshold          time.Duration
	maxAttempts        int
	errWhitelist       map[error]struct{}
	log                *logging.Logger
}

// NewRetrier returns a Retrier that waits exponentialBackoff after the first
// failure, multiplying the wait by factor after each further failure. No
// attempt starts later than threshold after the first failure.
func NewRetrier(exponentialBackoff, threshold time.Duration, factor uint32) *Retrier {
	if factor == 0 {
		factor = 1
	}
	return &Retrier{
		exponentialBackoff: exponentialBackoff,
		threshold:          threshold,
		exponentialFactor:  factor,
		errWhitelist:       make(map[error]struct{}),
		log:                log,
	}
}

// WithErrWhitelist sets errors that are returned immediately instead of
// retried. Wrapped errors are matched by their cause.
func (r *Retrier) WithErrWhitelist(errs ...error) *Retrier {
	m := make(map[error]struct{})
	for _, err := range errs {
		m[err] = struct{}{}
	}

	r.errWhitelist = m
	return r
}

// WithMaxAttempts limits the number of calls. Zero means unlimited.
func (r *Retrier) WithMaxAttempts(n int) *Retrier {
	r.maxAttempts = n
	return r
}

// WithLogger replaces the package logger.
func (r *Retrier) WithLogger(l *logging.Logger) *Retrier {
	r.log = l
	return r
}

// Do calls f until it returns nil or a whitelisted error. The last error of f
// is wrapped into ErrThresholdReached or ErrAttemptsExhausted when giving up.
func (r Retrier) Do(f Func) error {
	var deadline time.Time
	currentBackoff := r.exponentialBackoff

	for attempt := 1; ; attempt++ {
		err := f()
		if err == nil {
			return nil
		}
		if r.isWhitelisted(err) {
			return err
		}
		r.log.WithError(err).Warnf("Attempt %d failed", attempt)

		if r.maxAttempts > 0 && attempt >= r.maxAttempts {
			return errors.Wrap(ErrAttemptsExhausted, err.Error())
		}
		if deadline.IsZero() {
			deadline = time.Now().Add(r.threshold)
		}
		if time.Now().Add(currentBackoff).After(deadline) {
			return errors.Wrap(ErrThresholdReached, err.Error())
		}

		time.Sleep(currentBackoff)
		currentBackoff = currentBackoff * time.Duration(r.exponentialFactor)
	}
}

func (r Retrier) isWhitelisted(err error) bool {
	if _, ok := r.errWhitelist[err]; ok {
		return true
	}
	_, ok := r.errWhitelist[errors.Cause(err)]
	return ok
}
