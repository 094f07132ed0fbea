// Package retry implements the generic retry helper of
// architecture.md section 5, "Retry policy": exponential backoff (base 1s,
// doubled per attempt) plus random jitter (0-100ms), max 3 attempts by
// default, firing only for errors the store package classifies transient.
//
// Grounded on internal/graph/client.go's doRetry loop (attempt counter,
// injectable sleep func for tests, context-aware cancellation) and
// internal/graph/errors.go's isRetryable predicate, generalized from HTTP
// status codes to the Timeout/Transient/SchemaError/ApplyFailure/Cancelled
// taxonomy.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	sethretry "github.com/sethvargo/go-retry"

	"github.com/countrydata/rowsync/internal/store"
)

const (
	// DefaultMaxAttempts is the default retry cap (architecture.md section 5).
	DefaultMaxAttempts = 3
	// DefaultBaseDelay is the exponential backoff starting point.
	DefaultBaseDelay = 1 * time.Second
	// jitterCeiling bounds the random jitter added to every delay.
	jitterCeiling = 100 * time.Millisecond
)

// Runner retries an operation with exponential backoff, retrying only
// transient errors as classified by Classify.
type Runner struct {
	maxAttempts uint64
	baseDelay   time.Duration
	logger      *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n uint64) Option {
	return func(r *Runner) { r.maxAttempts = n }
}

// WithBaseDelay overrides DefaultBaseDelay.
func WithBaseDelay(d time.Duration) Option {
	return func(r *Runner) { r.baseDelay = d }
}

// New creates a Runner. logger may be nil.
func New(logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Runner{
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		logger:      logger,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Do runs fn, retrying on classified-transient errors until maxAttempts is
// exhausted or ctx is done. Non-transient errors propagate on the first
// attempt (architecture.md section 7, "Propagation policy").
func (r *Runner) Do(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	backoff, err := sethretry.NewExponential(r.baseDelay)
	if err != nil {
		return err
	}

	exp := backoff
	backoff = sethretry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := exp.Next()
		if stop {
			return 0, true
		}

		return d + rand.N(jitterCeiling), false
	})
	if r.maxAttempts > 0 {
		backoff = sethretry.WithMaxRetries(r.maxAttempts-1, backoff)
	}

	attempt := 0

	return sethretry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		err := fn(ctx)
		if err == nil {
			return nil
		}

		if !Classify(err) {
			return err
		}

		r.logger.Warn("retrying after transient error",
			slog.String("operation", label),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)

		return sethretry.RetryableError(err)
	})
}

// Classify reports whether err should be retried: Timeout and Transient are
// retryable; SchemaError, ApplyFailure, Cancelled, and anything unclassified
// are not (error-handling-design.md section 7).
func Classify(err error) bool {
	if err == nil {
		return false
	}

	var applyErr *store.ApplyFailure
	if errors.As(err, &applyErr) {
		return false
	}

	return errors.Is(err, store.ErrTimeout) || errors.Is(err, store.ErrTransient)
}
