// Package retry runs operations with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config describes a backoff schedule. Zero delays and multiplier take the
// DefaultConfig values.
type Config struct {
	MaxAttempts  int // including the first
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	AddJitter    bool // randomize each delay by up to 25%

	// OnRetry, if set, is called before each wait with the failed
	// attempt's error.
	OnRetry func(err error, wait time.Duration)
}

// DefaultConfig suits requests to a peer that is expected to be up.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2, AddJitter: true}
}

// Quick suits waiting for a backend that is still starting.
func Quick() Config {
	return Config{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 1.5, AddJitter: true}
}

// NonRetryable marks err so that Do returns it without further attempts.
// Do returns the unmarked err.
func NonRetryable(err error) error {
	return backoff.Permanent(err)
}

func (c Config) schedule(ctx context.Context) (backoff.BackOffContext, error) {
	def := DefaultConfig()
	if c.InitialDelay < 0 || c.MaxDelay < 0 || c.Multiplier < 0 {
		return nil, errors.New("retry: delays and multiplier cannot be negative")
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = def.InitialDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.Multiplier == 0 {
		c.Multiplier = def.Multiplier
	}
	if c.MaxDelay < c.InitialDelay {
		return nil, errors.New("retry: MaxDelay must be >= InitialDelay")
	}
	attempts := max(c.MaxAttempts, 1)

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.InitialDelay
	exp.MaxInterval = c.MaxDelay
	exp.Multiplier = min(c.Multiplier, 1000)
	exp.MaxElapsedTime = 0
	exp.RandomizationFactor = 0
	if c.AddJitter {
		exp.RandomizationFactor = 0.25
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx), nil
}

// Do calls fn until it succeeds, returns an error marked NonRetryable, the
// attempts run out, or ctx is done.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	sched, err := cfg.schedule(ctx)
	if err != nil {
		return err
	}

	var attempts int
	var permanent bool
	err = backoff.RetryNotify(func() error {
		attempts++
		err := fn()
		var p *backoff.PermanentError
		permanent = errors.As(err, &p)
		return err
	}, sched, cfg.OnRetry)

	switch {
	case err == nil, permanent:
		return err
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return fmt.Errorf("retry cancelled after %d attempts: %w", attempts, err)
	default:
		return fmt.Errorf("retry failed after %d attempts: %w", attempts, err)
	}
}

// DoWithResult is Do for functions that also return a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}
