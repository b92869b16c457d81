// Package external is the single retry/timeout primitive behind every
// outbound HTTP dependency (LLM, gateway, upstream catalog). Components
// configure a policy once instead of sprinkling sleeps around call sites.
package external

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/saqiah/waterbot/pkg/logger"
)

// Policy parameterizes CallWithRetry.
type Policy struct {
	// Name tags retry log lines, e.g. "wati.send" or "upstream.get-cities".
	Name string
	// Timeout bounds a single attempt. Zero means the caller's context
	// deadline alone applies.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay is the first backoff delay; doubled per attempt with
	// random jitter up to BaseDelay on top.
	BaseDelay time.Duration
	// Retryable decides whether an error is worth another attempt. Nil
	// retries everything except context cancellation.
	Retryable func(error) bool
}

// StatusError carries an HTTP status through the retry predicate.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// RetryableStatus is the default predicate for upstream and gateway calls:
// 429 and any 5xx retry, 4xx does not, transport errors do.
func RetryableStatus(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status == 429 || se.Status >= 500
	}
	return true
}

// CallWithRetry runs fn under the policy: per-attempt timeout, exponential
// backoff with jitter, bounded attempts. Context cancellation always stops
// the loop.
func CallWithRetry(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}

	attempt := func() error {
		attemptCtx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}
		return fn(attemptCtx)
	}

	return retry.Do(
		attempt,
		retry.Context(ctx),
		retry.Attempts(uint(p.MaxRetries)+1),
		retry.Delay(base),
		retry.MaxJitter(base),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if ctx.Err() != nil {
				return false
			}
			if p.Retryable != nil {
				return p.Retryable(err)
			}
			return true
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.Base().Warn("retrying external call",
				zap.String("call", p.Name),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	)
}
