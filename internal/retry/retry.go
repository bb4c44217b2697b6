// Package retry holds the fixed-delay policy around a publish cycle and the loop backoff.
package retry

import (
	"context"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/linkedin-autoposter/internal/apierr"
	"github.com/linkedin-autoposter/internal/config"
	"github.com/linkedin-autoposter/pkg/logger"
)

// Policy retries an operation a fixed number of times with a fixed delay
type Policy struct {
	MaxRetries  int
	Delay       time.Duration
	AbortOnAuth bool

	log *logger.Logger
}

// NewPolicy builds a policy from config
func NewPolicy(cfg config.RetryConfig, log *logger.Logger) *Policy {
	return &Policy{
		MaxRetries:  cfg.MaxRetries,
		Delay:       cfg.RetryDelay,
		AbortOnAuth: cfg.AbortOnAuthError,
		log:         log.WithComponent("retry"),
	}
}

// Attempts is the total number of attempts the policy allows
func (p *Policy) Attempts() int {
	if p.MaxRetries < 1 {
		return 1
	}
	return p.MaxRetries
}

func (p *Policy) retryable(err error) bool {
	if err == nil {
		return false
	}
	if p.AbortOnAuth && apierr.IsAuth(err) {
		return false
	}
	return true
}

// Do runs op until it succeeds or the attempts are spent. Every failed attempt is logged
// with its number; the error of the last attempt is returned unchanged.
func Do[T any](ctx context.Context, p *Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	maxAttempts := p.Attempts()

	policy := retrypolicy.NewBuilder[T]().
		HandleIf(func(_ T, err error) bool {
			return p.retryable(err)
		}).
		WithMaxRetries(maxAttempts - 1).
		WithDelay(p.Delay).
		ReturnLastFailure().
		Build()

	attempt := 0
	return failsafe.With(policy).WithContext(ctx).Get(func() (T, error) {
		attempt++
		result, err := op(ctx, attempt)
		if err != nil {
			event := p.log.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_attempts", maxAttempts)
			if kind := apierr.KindOf(err); kind != "" {
				event = event.Str("kind", string(kind))
			}
			switch {
			case !p.retryable(err):
				event.Msg("Attempt failed, not retrying")
			case attempt < maxAttempts:
				event.Dur("retry_in", p.Delay).Msg("Attempt failed, retrying")
			default:
				event.Msg("Attempt failed, giving up")
			}
		}
		return result, err
	})
}

// TickBackoff returns min(base * 2^n, limit) for n consecutive failures
func TickBackoff(n int, base, limit time.Duration) time.Duration {
	if n < 0 {
		n = 0
	}
	d := base
	for i := 0; i < n; i++ {
		d *= 2
		if d >= limit || d <= 0 {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}
