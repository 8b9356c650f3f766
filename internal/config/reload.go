package config

import (
	"fmt"
	"sync/atomic"
)

// Store holds the active Config behind an atomic pointer so readers never
// observe a partially-applied reload: Swap replaces the whole struct in
// one atomic write.
type Store struct {
	ptr atomic.Pointer[Config]
}

// NewStore wraps an initial Config.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.ptr.Store(cfg)
	return s
}

// Get returns the currently active configuration.
func (s *Store) Get() *Config {
	return s.ptr.Load()
}

// Reload loads a fresh Config from configPath and swaps it in only if it
// parses and validates cleanly and keeps the running execution_mode and
// exchange set, leaving the previous configuration active on any error.
// Changing either of those requires a restart.
func (s *Store) Reload(configPath string) error {
	cfg, err := Load(configPath)
	if err != nil {
		return err
	}
	if cur := s.ptr.Load(); cur != nil {
		same := cfg.Arbot.System.ExecutionMode == cur.Arbot.System.ExecutionMode &&
			len(cfg.Arbot.System.Exchanges) == len(cur.Arbot.System.Exchanges)
		for i := 0; same && i < len(cfg.Arbot.System.Exchanges); i++ {
			same = cfg.Arbot.System.Exchanges[i] == cur.Arbot.System.Exchanges[i]
		}
		if !same {
			return fmt.Errorf("config reload: execution_mode or exchange set changed; restart required")
		}
	}
	s.ptr.Store(cfg)
	return nil
}
