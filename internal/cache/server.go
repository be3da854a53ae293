// Package cache provides the per-server key-value store the cluster places
// keys on. A server is either active or inactive; every data operation on an
// inactive server fails, except Size and IsActive.
package cache

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zde37/ringcache/pkg"
)

// Server is a single cache server: an in-memory key-value store with
// hit/miss metrics and an active flag. The data map has its own lock; the
// metric counters are atomic so reads are never torn.
type Server struct {
	id      string
	started time.Time

	mu   sync.RWMutex
	data map[string][]byte

	hits     atomic.Int64
	misses   atomic.Int64
	requests atomic.Int64
	active   atomic.Bool
}

// ServerStats is an immutable snapshot of one server's metrics.
type ServerStats struct {
	ServerID string        `json:"server_id"`
	Active   bool          `json:"active"`
	HitRate  float64       `json:"hit_rate"`
	Hits     int64         `json:"hits"`
	Misses   int64         `json:"misses"`
	Requests int64         `json:"requests"`
	Keys     int           `json:"keys"`
	Uptime   time.Duration `json:"uptime"`
}

// NewServer creates an active, empty server. The id is trimmed; blank ids
// are rejected.
func NewServer(id string) (*Server, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, pkg.ErrEmptyServerID
	}

	s := &Server{
		id:      id,
		started: time.Now(),
		data:    make(map[string][]byte),
	}
	s.active.Store(true)
	return s, nil
}

// ID returns the server's unique identifier.
func (s *Server) ID() string {
	return s.id
}

// RingID makes *Server a ring member; virtual-node hashes derive from it.
func (s *Server) RingID() string {
	return s.id
}

// Get retrieves a value. Misses count against the server's metrics and
// return pkg.ErrKeyNotFound.
func (s *Server) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, pkg.ErrEmptyKey
	}
	if !s.active.Load() {
		return nil, pkg.ErrServerUnavailable
	}

	s.requests.Add(1)

	s.mu.RLock()
	value, ok := s.data[key]
	s.mu.RUnlock()

	if !ok {
		s.misses.Add(1)
		return nil, pkg.ErrKeyNotFound
	}

	s.hits.Add(1)

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Put stores a value and returns the previous value for the key, or nil if
// there was none. The value is copied on the way in.
func (s *Server) Put(key string, value []byte) ([]byte, error) {
	if key == "" {
		return nil, pkg.ErrEmptyKey
	}
	if !s.active.Load() {
		return nil, pkg.ErrServerUnavailable
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	previous, had := s.data[key]
	s.data[key] = stored
	s.mu.Unlock()

	if !had {
		return nil, nil
	}
	return previous, nil
}

// Remove deletes a key and returns the removed value, or nil if the key was
// not present.
func (s *Server) Remove(key string) ([]byte, error) {
	if key == "" {
		return nil, pkg.ErrEmptyKey
	}
	if !s.active.Load() {
		return nil, pkg.ErrServerUnavailable
	}

	s.mu.Lock()
	removed, had := s.data[key]
	delete(s.data, key)
	s.mu.Unlock()

	if !had {
		return nil, nil
	}
	return removed, nil
}

// Contains reports whether the key is present.
func (s *Server) Contains(key string) (bool, error) {
	if key == "" {
		return false, pkg.ErrEmptyKey
	}
	if !s.active.Load() {
		return false, pkg.ErrServerUnavailable
	}

	s.mu.RLock()
	_, ok := s.data[key]
	s.mu.RUnlock()
	return ok, nil
}

// Keys returns a snapshot of every key stored on this server.
func (s *Server) Keys() ([]string, error) {
	if !s.active.Load() {
		return nil, pkg.ErrServerUnavailable
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}

// Size returns the number of stored keys. Works on inactive servers.
func (s *Server) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Clear drops all stored data but keeps the metrics.
func (s *Server) Clear() error {
	if !s.active.Load() {
		return pkg.ErrServerUnavailable
	}

	s.mu.Lock()
	s.data = make(map[string][]byte)
	s.mu.Unlock()
	return nil
}

// IsActive reports whether the server accepts data operations.
func (s *Server) IsActive() bool {
	return s.active.Load()
}

// Deactivate simulates a transient failure. Data stays in place; operations
// fail until Activate is called.
func (s *Server) Deactivate() {
	s.active.Store(false)
}

// Activate brings the server back after a simulated failure.
func (s *Server) Activate() {
	s.active.Store(true)
}

// HitRate returns the percentage of gets that were hits, 0-100.
func (s *Server) HitRate() float64 {
	hits := s.hits.Load()
	total := hits + s.misses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// Uptime returns how long the server has existed.
func (s *Server) Uptime() time.Duration {
	return time.Since(s.started)
}

// Stats returns a point-in-time snapshot of the server's metrics.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		ServerID: s.id,
		Active:   s.active.Load(),
		HitRate:  s.HitRate(),
		Hits:     s.hits.Load(),
		Misses:   s.misses.Load(),
		Requests: s.requests.Load(),
		Keys:     s.Size(),
		Uptime:   s.Uptime(),
	}
}

// ResetMetrics zeroes the hit/miss/request counters.
func (s *Server) ResetMetrics() {
	s.hits.Store(0)
	s.misses.Store(0)
	s.requests.Store(0)
}
