package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/countrydata/rowsync/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunnerRetriesTransientThenSucceeds(t *testing.T) {
	r := New(testLogger(), WithMaxAttempts(3), WithBaseDelay(time.Millisecond))

	calls := 0
	err := r.Do(context.Background(), "test-op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return store.ErrTransient
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRunnerGivesUpAfterMaxAttempts(t *testing.T) {
	r := New(testLogger(), WithMaxAttempts(3), WithBaseDelay(time.Millisecond))

	calls := 0
	err := r.Do(context.Background(), "test-op", func(ctx context.Context) error {
		calls++
		return store.ErrTransient
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRunnerDoesNotRetryNonTransient(t *testing.T) {
	r := New(testLogger(), WithMaxAttempts(3), WithBaseDelay(time.Millisecond))

	calls := 0
	schemaErr := &store.SchemaError{Table: "Customer"}
	err := r.Do(context.Background(), "test-op", func(ctx context.Context) error {
		calls++
		return schemaErr
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestClassify(t *testing.T) {
	assert.True(t, Classify(store.ErrTimeout))
	assert.True(t, Classify(store.ErrTransient))
	assert.False(t, Classify(store.ErrSchema))
	assert.False(t, Classify(errors.New("boom")))
	assert.False(t, Classify(nil))
}
