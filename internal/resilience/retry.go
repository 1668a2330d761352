package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/eduardocaminha/reporter-sub000/pkg/provider/llm"
)

// Retry defaults.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 8 * time.Second
)

// Retry re-runs an operation after overload (529) and rate-limit (429)
// failures with exponential backoff. Every other error is returned to the
// caller unchanged on the attempt that produced it.
type Retry struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the delay before the first retry; it doubles for each
	// following retry.
	BaseDelay time.Duration

	// MaxDelay caps a single delay.
	MaxDelay time.Duration

	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry, when set, is told about every scheduled retry.
	OnRetry func(attempt, status int, delay time.Duration)
}

// DefaultRetry returns the 1s, 2s, 4s policy.
func DefaultRetry() *Retry {
	return &Retry{MaxRetries: DefaultMaxRetries, BaseDelay: DefaultBaseDelay, MaxDelay: DefaultMaxDelay}
}

// Delay returns the wait before retry n (1-based).
func (r *Retry) Delay(n int) time.Duration {
	base := r.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	d := base << (n - 1)
	if r.MaxDelay > 0 && (d > r.MaxDelay || d <= 0) {
		d = r.MaxDelay
	}
	return d
}

// Do runs op until it succeeds, fails with a non-transient error, or the
// retry budget is spent. The last error is returned as produced by op.
func Do[T any](ctx context.Context, r *Retry, op func(ctx context.Context) (T, error)) (T, error) {
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	for attempt := 0; ; attempt++ {
		out, err := op(ctx)
		if err == nil || !llm.IsTransient(err) || attempt >= r.MaxRetries {
			return out, err
		}

		status := llm.StatusCode(err)
		delay := r.Delay(attempt + 1)
		slog.Warn("model call throttled, backing off",
			"attempt", attempt+1,
			"max_retries", r.MaxRetries,
			"status", status,
			"delay", delay)
		if r.OnRetry != nil {
			r.OnRetry(attempt+1, status, delay)
		}
		if serr := sleep(ctx, delay); serr != nil {
			var zero T
			return zero, serr
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryingProvider applies a [Retry] policy to the non-streaming calls of an
// [llm.Provider]. Streams are passed through untouched: once tokens flow, a
// failure is terminal.
type RetryingProvider struct {
	llm.Provider
	policy *Retry
}

var _ llm.Provider = (*RetryingProvider)(nil)

// NewRetryingProvider wraps p with policy.
func NewRetryingProvider(p llm.Provider, policy *Retry) *RetryingProvider {
	return &RetryingProvider{Provider: p, policy: policy}
}

// Complete implements llm.Provider with retries.
func (rp *RetryingProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Do(ctx, rp.policy, func(ctx context.Context) (*llm.CompletionResponse, error) {
		return rp.Provider.Complete(ctx, req)
	})
}
