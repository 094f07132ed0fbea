package config

import "os"

// Environment variable names, mirroring the teacher's ONEDRIVE_GO_* override
// pattern adapted to this engine's own knobs.
const (
	envConfigPath = "ROWSYNC_CONFIG"
	envLocalDSN   = "ROWSYNC_LOCAL_DSN"
	envRemoteDSN  = "ROWSYNC_REMOTE_DSN"
)

// EnvOverrides holds the raw values of recognized override environment
// variables. Empty fields mean "not set".
type EnvOverrides struct {
	ConfigPath string
	LocalDSN   string
	RemoteDSN  string
}

// ReadEnvOverrides reads the recognized environment variables.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(envConfigPath),
		LocalDSN:   os.Getenv(envLocalDSN),
		RemoteDSN:  os.Getenv(envRemoteDSN),
	}
}

// Apply layers the environment overrides on top of cfg. Env overrides config
// file values; no CLI flag sets the store DSNs, so nothing overrides these.
func (e EnvOverrides) Apply(cfg *Config) {
	if e.LocalDSN != "" {
		cfg.Local.DSN = e.LocalDSN
	}

	if e.RemoteDSN != "" {
		cfg.Remote.DSN = e.RemoteDSN
	}
}
