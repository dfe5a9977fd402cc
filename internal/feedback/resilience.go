package feedback

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// RetryConfig configures exponential backoff around the diagnostic callback.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 2min)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

type diagnosis struct {
	fix    string
	tokens int
}

// NewDiagnosisBreaker creates a circuit breaker sized for the diagnostic
// tier: the diagnoser is the most expensive call in the pipeline, so
// repeated failures should stop burning budget quickly.
func NewDiagnosisBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3, // Allow 3 test requests in half-open state
		Interval:    0, // Don't clear counts automatically
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			// Don't count caller cancellation as a diagnoser failure
			if err == nil {
				return true
			}
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
}

// WithResilience wraps a Diagnose callback with exponential backoff retry and
// circuit breaker protection. An open circuit or cancelled context stops
// retrying immediately.
func WithResilience(diagnose Diagnose, cb *gobreaker.CircuitBreaker, retryCfg RetryConfig) Diagnose {
	return func(ctx context.Context, language, errorClass string, errs []string) (string, int, error) {
		var diag diagnosis

		operation := func() error {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}

			result, err := cb.Execute(func() (interface{}, error) {
				fix, tokens, err := diagnose(ctx, language, errorClass, errs)
				if err != nil {
					return nil, err
				}
				return diagnosis{fix: fix, tokens: tokens}, nil
			})
			if err != nil {
				// Circuit is open - don't retry
				if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
					return backoff.Permanent(err)
				}
				if ctx.Err() != nil {
					return backoff.Permanent(err)
				}
				return err
			}

			diag = result.(diagnosis)
			return nil
		}

		backoffPolicy := backoff.NewExponentialBackOff()
		backoffPolicy.InitialInterval = retryCfg.InitialInterval
		backoffPolicy.MaxInterval = retryCfg.MaxInterval
		backoffPolicy.MaxElapsedTime = retryCfg.MaxElapsedTime
		backoffPolicy.Multiplier = retryCfg.Multiplier
		backoffPolicy.RandomizationFactor = retryCfg.RandomizationFactor

		if err := backoff.Retry(operation, backoff.WithContext(backoffPolicy, ctx)); err != nil {
			return "", 0, err
		}
		return diag.fix, diag.tokens, nil
	}
}
