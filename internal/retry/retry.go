// Package retry runs an attempt function under a bounded retry policy.
// The caller decides which errors are transient through a Classifier;
// everything else stops the loop on the first occurrence.
package retry

import (
	"context"
	"time"
)

// Class tells Do what to do with an attempt error.
type Class int

const (
	// Terminal errors end the loop immediately.
	Terminal Class = iota
	// Transient errors are retried until the attempt budget is spent.
	Transient
)

// Classifier maps an attempt error to a Class.
type Classifier func(error) Class

// Status is the final state of a Do call.
type Status int

const (
	Succeeded Status = iota
	Failed
	Exhausted
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Exhausted:
		return "exhausted"
	}
	return "unknown"
}

// Result carries the value of the successful attempt or the error that
// ended the loop.  For Exhausted, Err is the last transient error.
type Result[T any] struct {
	Value    T
	Status   Status
	Attempts int
	Err      error
}

// Policy bounds the loop.  Backoff receives the 1-based number of the
// attempt that just failed.  Sleep defaults to a context-aware timer and
// can be replaced in tests.
type Policy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Linear returns a backoff of step * attempt.
func Linear(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration { return step * time.Duration(attempt) }
}

// Do calls attempt up to p.MaxAttempts times.  attempt receives the
// 1-based attempt number.  A context cancelled while backing off ends the
// loop as Failed with the context error.
func Do[T any](ctx context.Context, p Policy, classify Classifier, attempt func(ctx context.Context, n int) (T, error)) Result[T] {
	max := p.MaxAttempts
	if max < 1 {
		max = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var res Result[T]
	for n := 1; n <= max; n++ {
		res.Attempts = n
		v, err := attempt(ctx, n)
		if err == nil {
			res.Value = v
			res.Status = Succeeded
			res.Err = nil
			return res
		}
		res.Err = err
		if classify == nil || classify(err) != Transient {
			res.Status = Failed
			return res
		}
		if n == max {
			break
		}
		if p.Backoff != nil {
			if d := p.Backoff(n); d > 0 {
				if serr := sleep(ctx, d); serr != nil {
					res.Status = Failed
					res.Err = serr
					return res
				}
			}
		}
	}
	res.Status = Exhausted
	return res
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
