// Package config holds the process-wide dynamic key/value store used to
// configure the reactor, client pool and router, plus the YAML-backed
// loader that fills it (the teacher's own control/config.go has no file
// format of its own). Grounded on the teacher's control/config.go
// (ConfigStore: map[string]any, atomic snapshot, reload listeners), adapted
// into one cohesive component with the YAML loader: Set now diffs the
// incoming values against the current snapshot and only dispatches reload
// listeners — passing them the keys that actually changed — when something
// did, and LoadYAML/ReloadFromFile reject keys ServerConfig does not
// recognize instead of silently absorbing typos from an operator's file.
// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Store is a thread-safe key/value map with atomic snapshot and change-only
// reload notification.
type Store struct {
	mu        sync.RWMutex
	values    map[string]any
	listeners []func(changed []string)
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{values: make(map[string]any)}
}

// Snapshot returns a shallow copy of all values.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Set merges newValues into the store and notifies listeners with the keys
// whose value actually changed (added or differing from what was stored).
// A reload that changes nothing — re-reading an untouched config file, for
// instance — fires no listener, unlike the teacher's SetConfig, which
// dispatches unconditionally on every call.
func (s *Store) Set(newValues map[string]any) []string {
	s.mu.Lock()
	var changed []string
	for k, v := range newValues {
		if old, ok := s.values[k]; !ok || old != v {
			changed = append(changed, k)
		}
		s.values[k] = v
	}
	s.mu.Unlock()

	if len(changed) == 0 {
		return nil
	}
	s.mu.RLock()
	listeners := append([]func(changed []string){}, s.listeners...)
	s.mu.RUnlock()
	for _, fn := range listeners {
		go fn(changed)
	}
	return changed
}

// Get returns one value and whether it was present.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// OnReload registers a callback invoked (in its own goroutine) with the list
// of changed keys whenever Set actually changes something.
func (s *Store) OnReload(fn func(changed []string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// serverConfigKeys is the set of keys DecodeServerConfig understands. Used
// to reject an operator's config typo instead of silently ignoring it.
var serverConfigKeys = map[string]bool{
	"listen_addr":              true,
	"reactor_workers":          true,
	"queue_capacity":           true,
	"pool_size":                true,
	"shutdown_timeout_seconds": true,
}

// LoadYAML parses a YAML document from path into a fresh Store, rejecting
// any top-level key DecodeServerConfig does not recognize.
func LoadYAML(path string) (*Store, error) {
	decoded, err := readYAML(path)
	if err != nil {
		return nil, err
	}
	if err := validateKeys(decoded); err != nil {
		return nil, err
	}
	s := NewStore()
	s.Set(decoded)
	return s, nil
}

// ReloadFromFile re-reads path into s, returning the keys that changed
// relative to the store's prior contents (nil if nothing did). Intended for
// a watch loop driven by reactor.Reactor.AddPeriodic, since this store has
// no filesystem-watch machinery of its own.
func (s *Store) ReloadFromFile(path string) ([]string, error) {
	decoded, err := readYAML(path)
	if err != nil {
		return nil, err
	}
	if err := validateKeys(decoded); err != nil {
		return nil, err
	}
	return s.Set(decoded), nil
}

func readYAML(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var decoded map[string]any
	if err := yaml.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return decoded, nil
}

func validateKeys(decoded map[string]any) error {
	for k := range decoded {
		if !serverConfigKeys[k] {
			return fmt.Errorf("config: unknown key %q", k)
		}
	}
	return nil
}

// ServerConfig is the subset of a Store's values the server/reactor need,
// decoded with sane defaults for anything missing.
type ServerConfig struct {
	ListenAddr      string
	ReactorWorkers  int
	QueueCapacity   int
	PoolSize        int
	ShutdownTimeout float64 // seconds
}

// DefaultServerConfig mirrors the teacher's DefaultConfig() idiom.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:      ":8080",
		ReactorWorkers:  4,
		QueueCapacity:   1024,
		PoolSize:        8,
		ShutdownTimeout: 30,
	}
}

// DecodeServerConfig overlays values present in the store onto defaults.
func DecodeServerConfig(s *Store) ServerConfig {
	cfg := DefaultServerConfig()
	snap := s.Snapshot()
	if v, ok := snap["listen_addr"].(string); ok {
		cfg.ListenAddr = v
	}
	if v, ok := asInt(snap["reactor_workers"]); ok {
		cfg.ReactorWorkers = v
	}
	if v, ok := asInt(snap["queue_capacity"]); ok {
		cfg.QueueCapacity = v
	}
	if v, ok := asInt(snap["pool_size"]); ok {
		cfg.PoolSize = v
	}
	if v, ok := snap["shutdown_timeout_seconds"].(float64); ok {
		cfg.ShutdownTimeout = v
	} else if v, ok := asInt(snap["shutdown_timeout_seconds"]); ok {
		cfg.ShutdownTimeout = float64(v)
	}
	return cfg
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}
