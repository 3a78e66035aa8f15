// ABOUTME: Concurrency-safe key/value store for process-wide shared configuration.
// ABOUTME: Holds bot identity, avatar URL, join-log channel, and marker emoji ids.

package state

import (
	"strconv"
	"sync"
)

// Well-known keys used across the gateway.
const (
	KeyBotID           = "bot_id"
	KeyBotAvatar       = "bot_avatar"
	KeyJoinLog         = "join_log"
	KeyMarkerEmojiID   = "marker_emoji_id"
	KeyMarkerEmojiName = "marker_emoji_name"
)

// Store is a concurrency-safe string key/value store. It is injected into
// components at construction; there are no ambient globals. Reads dominate
// writes, so lookups take the read lock only.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
}

// New creates an empty Store.
func New() *Store {
	return &Store{values: make(map[string]string)}
}

// Set stores a value under key, replacing any previous value.
func (s *Store) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Get returns the value for key and whether it was present.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// GetUint64 returns the value for key parsed as an unsigned integer.
// Returns false if the key is absent or not numeric.
func (s *Store) GetUint64(key string) (uint64, bool) {
	v, ok := s.Get(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SetUint64 stores a numeric value under key.
func (s *Store) SetUint64(key string, value uint64) {
	s.Set(key, strconv.FormatUint(value, 10))
}

// Snapshot returns a copy of all current values.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
