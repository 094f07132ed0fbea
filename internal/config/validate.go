package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	minRetryAttempts = 1
	maxRetryAttempts = 20
	minLockDuration  = time.Second
)

var validLogFormats = map[string]bool{"text": true, "json": true}

// Validate checks all configuration values and returns every error found in
// one pass, rather than stopping at the first, mirroring the teacher's
// accumulate-then-join Validate.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateTables(cfg.TablesToSync)...)
	errs = append(errs, validateColumnNames(cfg)...)
	errs = append(errs, validateStore("local", cfg.Local)...)
	errs = append(errs, validateRetry(cfg.Retry)...)
	errs = append(errs, validateLock(cfg.Lock)...)
	errs = append(errs, validateLogging(cfg.Logging)...)

	return errors.Join(errs...)
}

func validateTables(tables []string) []error {
	var errs []error

	seen := make(map[string]bool, len(tables))

	for _, t := range tables {
		if strings.TrimSpace(t) == "" {
			errs = append(errs, errors.New("tables_to_sync: entries must not be empty"))
			continue
		}

		key := strings.ToLower(t)
		if seen[key] {
			errs = append(errs, fmt.Errorf("tables_to_sync: duplicate table %q", t))
		}

		seen[key] = true
	}

	return errs
}

func validateColumnNames(cfg *Config) []error {
	var errs []error

	if strings.TrimSpace(cfg.PrimaryKeyColumn) == "" {
		errs = append(errs, errors.New("primary_key_column: must not be empty"))
	}

	if strings.TrimSpace(cfg.LastModifiedColumn) == "" {
		errs = append(errs, errors.New("last_modified_column: must not be empty"))
	}

	if strings.TrimSpace(cfg.IsDeletedColumn) == "" {
		errs = append(errs, errors.New("is_deleted_column: must not be empty"))
	}

	return errs
}

func validateStore(name string, s StoreConfig) []error {
	var errs []error

	if s.Driver == "" {
		errs = append(errs, fmt.Errorf("%s.driver: must not be empty", name))
	}

	if s.DSN == "" {
		errs = append(errs, fmt.Errorf("%s.dsn: must not be empty", name))
	}

	return errs
}

func validateRetry(r RetryConfig) []error {
	var errs []error

	if r.MaxAttempts < minRetryAttempts || r.MaxAttempts > maxRetryAttempts {
		errs = append(errs, fmt.Errorf("retry.max_attempts: must be between %d and %d, got %d",
			minRetryAttempts, maxRetryAttempts, r.MaxAttempts))
	}

	if _, err := time.ParseDuration(r.BaseDelay); err != nil {
		errs = append(errs, fmt.Errorf("retry.base_delay: %w", err))
	}

	return errs
}

func validateLock(l LockConfig) []error {
	var errs []error

	wait, err := time.ParseDuration(l.Wait)
	if err != nil {
		errs = append(errs, fmt.Errorf("lock.wait: %w", err))
	} else if wait < minLockDuration {
		errs = append(errs, fmt.Errorf("lock.wait: must be at least %s", minLockDuration))
	}

	lease, err := time.ParseDuration(l.Lease)
	if err != nil {
		errs = append(errs, fmt.Errorf("lock.lease: %w", err))
	} else if lease < minLockDuration {
		errs = append(errs, fmt.Errorf("lock.lease: must be at least %s", minLockDuration))
	}

	return errs
}

func validateLogging(l LoggingConfig) []error {
	var errs []error

	if l.Level != "" && !validLogLevel(l.Level) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", l.Level))
	}

	if l.Format != "" && !validLogFormats[l.Format] {
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", l.Format))
	}

	return errs
}

// validLogLevel reports whether s names a recognized slog level.
func validLogLevel(s string) bool {
	switch strings.ToLower(s) {
	case "debug", "info", "warn", "warning", "error":
		return true
	default:
		return false
	}
}
