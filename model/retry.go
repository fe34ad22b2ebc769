package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/raaf/core"
	"github.com/hupe1980/raaf/logging"
)

// RetryOptions configures bounded exponential backoff.
type RetryOptions struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration
	// AttemptTimeout bounds each attempt; zero disables it.
	AttemptTimeout time.Duration
	// Sleep waits between attempts; tests replace it.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger logging.Logger
}

// DefaultRetryOptions returns 4 attempts, 500ms base delay doubling up to 30s.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:    4,
		BaseDelay:      500 * time.Millisecond,
		Factor:         2,
		MaxDelay:       30 * time.Second,
		AttemptTimeout: 60 * time.Second,
		Sleep:          sleepContext,
		Logger:         logging.NoOpLogger{},
	}
}

// Retrier retries transient provider failures: ProviderUnavailable,
// RateLimited and Timeout. Everything else is returned after one attempt.
type Retrier struct {
	opts RetryOptions
}

// NewRetrier creates a Retrier.
func NewRetrier(optFns ...func(o *RetryOptions)) *Retrier {
	opts := DefaultRetryOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Factor < 1 {
		opts.Factor = 1
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Retrier{opts: opts}
}

// Delay returns the backoff before attempt+1 given the failure of attempt
// (1-based). A retry-after hint larger than the computed delay wins.
func (r *Retrier) Delay(attempt int, err error) time.Duration {
	d := float64(r.opts.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= r.opts.Factor
		if r.opts.MaxDelay > 0 && d >= float64(r.opts.MaxDelay) {
			d = float64(r.opts.MaxDelay)
			break
		}
	}
	delay := time.Duration(d)
	if r.opts.MaxDelay > 0 && delay > r.opts.MaxDelay {
		delay = r.opts.MaxDelay
	}
	if hint, ok := core.RetryAfterHint(err); ok && hint > delay {
		delay = hint
	}
	return delay
}

// Do runs fn until it succeeds, fails permanently or attempts run out. It
// returns the number of attempts made.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) (*Response, error)) (*Response, int, error) {
	var lastErr error
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		resp, err := r.attempt(ctx, fn)
		if err == nil {
			return resp, attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, attempt, fmt.Errorf("provider call aborted: %w", ctx.Err())
		}
		if !core.IsRetryable(err) || attempt == r.opts.MaxAttempts {
			return nil, attempt, err
		}

		delay := r.Delay(attempt, err)
		r.opts.Logger.Warn("provider.retry", "attempt", attempt, "kind", core.KindOf(err), "delay", delay, "error", err.Error())
		if serr := r.opts.Sleep(ctx, delay); serr != nil {
			return nil, attempt, fmt.Errorf("provider call aborted: %w", serr)
		}
	}
	return nil, r.opts.MaxAttempts, lastErr
}

func (r *Retrier) attempt(ctx context.Context, fn func(ctx context.Context) (*Response, error)) (*Response, error) {
	if r.opts.AttemptTimeout <= 0 {
		resp, err := fn(ctx)
		return resp, ClassifyError(err)
	}
	actx, cancel := context.WithTimeout(ctx, r.opts.AttemptTimeout)
	defer cancel()
	resp, err := fn(actx)
	if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) && !errors.Is(err, core.ErrTimeout) {
		return nil, fmt.Errorf("%w: attempt exceeded %s: %w", core.ErrTimeout, r.opts.AttemptTimeout, err)
	}
	return resp, ClassifyError(err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryingProvider decorates a Provider with a Retrier.
type retryingProvider struct {
	next    Provider
	retrier *Retrier
}

// WithRetry wraps p so Complete retries transient failures.
func WithRetry(p Provider, r *Retrier) Provider {
	if r == nil {
		r = NewRetrier()
	}
	return &retryingProvider{next: p, retrier: r}
}

func (p *retryingProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, _, err := p.retrier.Do(ctx, func(ctx context.Context) (*Response, error) {
		return p.next.Complete(ctx, req)
	})
	return resp, err
}

func (p *retryingProvider) Info() Info { return p.next.Info() }
