package timeauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retrying is a caller-side retry policy around a Source. Only ErrUnavailable is
// retried; ErrRoundNotFound and ErrInvalidParameters are returned on first sight.
type Retrying struct {
	Source      Source
	MaxAttempts int
	BaseBackoff time.Duration
	MaxInterval time.Duration
}

// NewRetrying wraps source. attempts < 1 is treated as a single attempt.
func NewRetrying(source Source, attempts int, base time.Duration) *Retrying {
	return &Retrying{
		Source:      source,
		MaxAttempts: attempts,
		BaseBackoff: base,
		MaxInterval: 5 * time.Second,
	}
}

func (r *Retrying) FetchParameters(ctx context.Context) (ChainParameters, error) {
	return retry(ctx, r, func() (ChainParameters, error) {
		return r.Source.FetchParameters(ctx)
	})
}

func (r *Retrying) FetchLatest(ctx context.Context) (Round, error) {
	return retry(ctx, r, func() (Round, error) {
		return r.Source.FetchLatest(ctx)
	})
}

func (r *Retrying) FetchRound(ctx context.Context, index uint64) (Round, error) {
	return retry(ctx, r, func() (Round, error) {
		return r.Source.FetchRound(ctx, index)
	})
}

func retry[T any](ctx context.Context, r *Retrying, op func() (T, error)) (T, error) {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	if r.BaseBackoff > 0 {
		exp.InitialInterval = r.BaseBackoff
	}
	if r.MaxInterval > 0 {
		exp.MaxInterval = r.MaxInterval
	}
	exp.Multiplier = 2
	exp.Reset()

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)

	var result T
	err := backoff.Retry(func() error {
		v, err := op()
		if err == nil {
			result = v
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)

	if err != nil && !IsRetryable(err) && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		err = fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return result, err
}
