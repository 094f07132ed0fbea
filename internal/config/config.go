// Package config loads and validates the engine's own TOML configuration
// file — the tablesToSync list, column name overrides, store DSNs, and the
// retry/lock knobs from component-design.md's configuration table. It does
// not model the out-of-scope "country/configuration loading" business
// feature; that stays an external collaborator.
package config

import "time"

// Config is the root of the engine's TOML configuration file.
type Config struct {
	TablesToSync       []string `toml:"tables_to_sync"`
	PrimaryKeyColumn   string   `toml:"primary_key_column"`
	LastModifiedColumn string   `toml:"last_modified_column"`
	IsDeletedColumn    string   `toml:"is_deleted_column"`

	Local   StoreConfig   `toml:"local"`
	Remote  StoreConfig   `toml:"remote"`
	Retry   RetryConfig   `toml:"retry"`
	Lock    LockConfig    `toml:"lock"`
	Logging LoggingConfig `toml:"logging"`
}

// StoreConfig names a database/sql driver and its DSN. Local and change-log
// data live behind the same handle; remote, lock, and sync-log stores share
// the Remote handle, mirroring the single-shared-Postgres deployment shape
// in architecture.md.
type StoreConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// RetryConfig controls RetryRunner's backoff policy for transient store
// errors (component-design.md section 4.4).
type RetryConfig struct {
	MaxAttempts int    `toml:"max_attempts"`
	BaseDelay   string `toml:"base_delay"`
}

// LockConfig controls the default wait/lease durations passed to
// Orchestrator.AcquireBulkImportLock (component-design.md section 4.6).
type LockConfig struct {
	Wait  string `toml:"wait"`
	Lease string `toml:"lease"`
}

// LoggingConfig controls the slog handler the CLI constructs at startup.
type LoggingConfig struct {
	Level  string `toml:"level"`
	File   string `toml:"file"`
	Format string `toml:"format"`
}

// BaseDelayDuration parses RetryConfig.BaseDelay. Callers hold a Config that
// has already passed Validate, so a parse failure here indicates a bug in
// validation rather than a condition callers need to handle gracefully.
func (r RetryConfig) BaseDelayDuration() time.Duration {
	d, err := time.ParseDuration(r.BaseDelay)
	if err != nil {
		panic("config: invalid retry.base_delay slipped past Validate: " + err.Error())
	}

	return d
}

// WaitDuration parses LockConfig.Wait.
func (l LockConfig) WaitDuration() time.Duration {
	d, err := time.ParseDuration(l.Wait)
	if err != nil {
		panic("config: invalid lock.wait slipped past Validate: " + err.Error())
	}

	return d
}

// LeaseDuration parses LockConfig.Lease.
func (l LockConfig) LeaseDuration() time.Duration {
	d, err := time.ParseDuration(l.Lease)
	if err != nil {
		panic("config: invalid lock.lease slipped past Validate: " + err.Error())
	}

	return d
}
