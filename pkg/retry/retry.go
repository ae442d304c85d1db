package retry

import (
	"context"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/angelmondragon/artisanmarket-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/artisanmarket-backend/pkg/errors"
)

const (
	defaultAttempts  = 3
	defaultBaseDelay = 50 * time.Millisecond
	defaultMaxDelay  = time.Second
	jitterPercent    = 10
)

// Policy bounds how often and how slowly a failing call is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// PolicyFromConfig maps the env-driven retry settings into a Policy.
func PolicyFromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
	}
}

// Once allows a single retry with no backoff ceiling beyond the base delay.
func Once(base time.Duration) Policy {
	return Policy{MaxAttempts: 2, BaseDelay: base, MaxDelay: base}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

func (p Policy) backoff() goretry.Backoff {
	b := goretry.NewExponential(p.BaseDelay)
	b = goretry.WithJitterPercent(jitterPercent, b)
	b = goretry.WithCappedDuration(p.MaxDelay, b)
	return goretry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

// Do runs fn until it succeeds, returns an error whose code is not retryable,
// or the policy runs out of attempts. A context that ends while waiting turns
// into a Timeout error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	return DoIf(ctx, p, pkgerrors.IsRetryable, fn)
}

// DoIf is Do with a caller supplied retry predicate.
func DoIf(ctx context.Context, p Policy, shouldRetry func(error) bool, fn func(ctx context.Context) error) error {
	p = p.normalized()
	err := goretry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && shouldRetry(err) {
			return goretry.RetryableError(err)
		}
		return err
	})
	if err != nil && ctx.Err() != nil && pkgerrors.As(err) == nil {
		return pkgerrors.FromContext(ctx, "retry aborted")
	}
	return err
}
