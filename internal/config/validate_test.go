package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, Validate(DefaultConfig()))
}

func TestValidateAcceptsEmptyTablesToSync(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TablesToSync = nil

	assert.NoError(t, Validate(cfg), "empty tables_to_sync is a valid no-op configuration")
}

func TestValidateRejectsDuplicateTables(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TablesToSync = []string{"Customer", "customer"}

	err := Validate(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate table")
}

func TestValidateRejectsBadRetryAttempts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry.MaxAttempts = 0

	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsUnparseableDurations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lock.Wait = "not-a-duration"

	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsLockDurationsBelowOneSecond(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lock.Lease = "100ms"

	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsUnknownLogFormat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Format = "xml"

	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsMissingLocalStore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Local.DSN = ""

	assert.Error(t, Validate(cfg))
}
