// Package retry runs operations under a configurable exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/liliang-cn/docchat/internal/domain"
)

// Policy configures how many times an operation is attempted.
// MaxAttempts <= 1 means a single attempt.
type Policy struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// Once is the policy that never retries.
var Once = Policy{MaxAttempts: 1}

func (p Policy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

// Do runs op until it succeeds, fails permanently, runs out of attempts, or
// ctx is done.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	if p.MaxAttempts <= 1 {
		return op(ctx)
	}
	v, err := backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err != nil && !Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)
	// The last attempt returns its error as-is, wrapper included.
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return v, err
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p Policy, op func(context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Retryable reports whether err may succeed on a later attempt.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch domain.KindOf(err) {
	case domain.KindDocumentNotFound,
		domain.KindSessionNotFound,
		domain.KindUnsupportedContentType,
		domain.KindInvalidRequest:
		return false
	}
	return true
}
