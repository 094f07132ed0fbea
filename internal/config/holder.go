package config

import "sync"

// Holder is a thread-safe mutable wrapper around a loaded Config, mirroring
// the teacher's Holder: Update swaps in a new Config that later readers see.
// The CLI commands do not use it; SIGHUP to `sync --watch` forces a resync
// and does not reload the config file.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewHolder wraps an already-loaded Config.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{cfg: cfg, path: path}
}

// Config returns the currently held Config. Callers must not mutate the
// returned value; treat it as a snapshot.
func (h *Holder) Config() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Path returns the file path the held Config was loaded from.
func (h *Holder) Path() string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.path
}

// Update replaces the held Config, for use after a successful reload.
func (h *Holder) Update(cfg *Config) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cfg = cfg
}
