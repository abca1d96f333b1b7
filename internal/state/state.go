// Package state provides the per-agent durable key/value store used for
// dedup sets, progress cursors, and completion tracking.
//
// A State instance is owned by exactly one agent. The store itself does
// no locking: an agent whose step fans out across pool workers must
// serialize access with its own mutex, because all workers share the one
// in-memory instance.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	logx "github.com/DW8888/alfred/pkg/logx"
)

// State is a string-keyed map of arbitrary JSON-serializable values,
// loaded once at construction and flushed explicitly after mutation.
type State struct {
	path string
	log  logx.Logger

	data map[string]json.RawMessage
}

// Load reads the state file at path. A missing or corrupt file is an
// empty state, never an error: agent startup must not fail on bad state.
func Load(path string, log logx.Logger) *State {
	s := &State{path: path, log: log, data: map[string]json.RawMessage{}}

	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("state read failed, starting empty", logx.String("path", path), logx.Err(err))
		}
		return s
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(b, &m); err != nil {
		log.Warn("state file corrupt, starting empty", logx.String("path", path), logx.Err(err))
		return s
	}
	if m != nil {
		s.data = m
	}
	return s
}

func (s *State) Path() string { return s.path }

// Get decodes the value stored under key into out.
// Returns false when the key is absent or the stored value does not
// decode into out's type.
func (s *State) Get(key string, out any) bool {
	raw, ok := s.data[key]
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		s.log.Warn("state value undecodable", logx.String("key", key), logx.Err(err))
		return false
	}
	return true
}

// Set stores v under key. The change is in-memory until Flush.
func (s *State) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.data[key] = raw
	return nil
}

// Delete removes key. The change is in-memory until Flush.
func (s *State) Delete(key string) {
	delete(s.data, key)
}

// Keys returns all stored keys in sorted order.
func (s *State) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Flush persists the full state atomically (tmp + rename).
func (s *State) Flush() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
