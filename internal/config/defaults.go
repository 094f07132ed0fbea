package config

// Default values, grounded on component-design.md section 6's
// configuration-knobs table.
const (
	defaultPrimaryKeyColumn   = "ID"
	defaultLastModifiedColumn = "LastModified"
	defaultIsDeletedColumn    = "IsDeleted"

	defaultRetryMaxAttempts = 3
	defaultRetryBaseDelay   = "1s"

	defaultLockWait  = "120s"
	defaultLockLease = "300s"

	defaultLogLevel  = "info"
	defaultLogFormat = "text"

	defaultLocalDriver = "sqlite"
)

// DefaultConfig returns a Config populated with every documented default.
// Load() seeds a fresh Config with this before decoding the file on top,
// so a config file only needs to name the knobs it overrides.
func DefaultConfig() *Config {
	return &Config{
		TablesToSync:       nil,
		PrimaryKeyColumn:   defaultPrimaryKeyColumn,
		LastModifiedColumn: defaultLastModifiedColumn,
		IsDeletedColumn:    defaultIsDeletedColumn,
		Local:              defaultLocalStoreConfig(),
		Remote:             StoreConfig{},
		Retry:              defaultRetryConfig(),
		Lock:               defaultLockConfig(),
		Logging:            defaultLoggingConfig(),
	}
}

func defaultLocalStoreConfig() StoreConfig {
	return StoreConfig{Driver: defaultLocalDriver, DSN: "file:rowsync.db?_pragma=busy_timeout(5000)"}
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: defaultRetryMaxAttempts, BaseDelay: defaultRetryBaseDelay}
}

func defaultLockConfig() LockConfig {
	return LockConfig{Wait: defaultLockWait, Lease: defaultLockLease}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{Level: defaultLogLevel, Format: defaultLogFormat}
}
