package library

import (
	"context"
	"time"

	"go.uber.org/zap"

	"bitbucket.org/kleinnic74/pinphotos/failure"
	"bitbucket.org/kleinnic74/pinphotos/logging"
)

// RetryPolicy retries operations failing with a transient error, waiting
// Backoff after the first failure and doubling the wait after each
// further one
type RetryPolicy struct {
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

var DefaultRetryPolicy = RetryPolicy{
	Attempts:   3,
	Backoff:    200 * time.Millisecond,
	MaxBackoff: 5 * time.Second,
}

// NoRetry runs operations exactly once
var NoRetry = RetryPolicy{Attempts: 1}

func (p RetryPolicy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	logger := logging.From(ctx)
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Backoff
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil || !failure.Retryable(err) || attempt >= attempts {
			return err
		}
		logger.Info("Retrying", zap.String("op", op), zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return failure.FromContext(ctx, op)
		case <-timer.C:
		}
		delay *= 2
		if p.MaxBackoff > 0 && delay > p.MaxBackoff {
			delay = p.MaxBackoff
		}
	}
}
