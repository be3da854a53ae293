// Package cluster coordinates a dynamic set of cache servers behind a
// consistent hashing ring. It exposes a key-value API, resolves key
// ownership through the ring, and migrates keys when a server is removed.
package cluster

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/zde37/ringcache/internal/cache"
	"github.com/zde37/ringcache/internal/ring"
	"github.com/zde37/ringcache/pkg"
)

// Cluster owns the hash ring, the server registry, and the aggregate
// counters. The outer lock guards topology (registry membership); the ring
// has its own lock and is always acquired after the cluster lock. Counters
// are atomic because data operations update them while holding only the
// read lock.
type Cluster struct {
	mu      sync.RWMutex
	ring    *ring.Ring[*cache.Server]
	servers map[string]*cache.Server
	logger  *pkg.Logger

	totalRequests atomic.Int64
	totalHits     atomic.Int64
	totalMisses   atomic.Int64
	keyMigrations atomic.Int64
}

// Stats is an aggregate snapshot of the whole cluster.
type Stats struct {
	TotalServers  int                 `json:"total_servers"`
	ActiveServers int                 `json:"active_servers"`
	TotalKeys     int                 `json:"total_keys"`
	TotalRequests int64               `json:"total_requests"`
	TotalHits     int64               `json:"total_hits"`
	TotalMisses   int64               `json:"total_misses"`
	HitRate       float64             `json:"hit_rate"`
	KeyMigrations int64               `json:"key_migrations"`
	Servers       []cache.ServerStats `json:"servers"`
}

// New creates an empty cluster with the given virtual-node count per
// server. Non-positive counts fall back to ring.DefaultVirtualNodes.
func New(virtualNodes int, logger *pkg.Logger) *Cluster {
	if logger == nil {
		logger = pkg.GetLogger()
	}

	return &Cluster{
		ring:    ring.New[*cache.Server](virtualNodes),
		servers: make(map[string]*cache.Server),
		logger:  logger.WithFields(pkg.Fields{"component": "cluster"}),
	}
}

// AddServer creates a new active, empty server, registers it, and places it
// on the ring. Returns pkg.ErrEmptyServerID for blank ids and
// pkg.ErrServerExists for duplicates.
func (c *Cluster) AddServer(id string) (*cache.Server, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, pkg.ErrEmptyServerID
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.servers[id]; ok {
		return nil, pkg.ErrServerExists
	}

	srv, err := cache.NewServer(id)
	if err != nil {
		return nil, err
	}

	if err := c.ring.Add(srv); err != nil {
		return nil, err
	}
	c.servers[id] = srv

	c.logger.Info().
		Str("server_id", id).
		Int("servers", len(c.servers)).
		Int("virtual_nodes", c.ring.VirtualNodeCount()).
		Msg("server added")

	return srv, nil
}

// RemoveServer takes the server off the ring and out of the registry, then
// migrates its keys to their newly resolved owners. Migration is
// best-effort: each key is transferred once and failures are dropped. The
// migration is complete by the time RemoveServer returns. Returns false if
// the id is unknown.
func (c *Cluster) RemoveServer(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	srv, ok := c.servers[id]
	if !ok {
		return false
	}

	// Snapshot before detaching. An inactive server refuses to hand over
	// its keys; removal still proceeds, there is just nothing to migrate.
	keys, err := srv.Keys()
	if err != nil {
		c.logger.Warn().
			Str("server_id", id).
			Err(err).
			Msg("could not snapshot keys, skipping migration")
		keys = nil
	}

	delete(c.servers, id)
	c.ring.Remove(srv)

	migrated := c.migrateKeys(keys, srv)

	c.logger.Info().
		Str("server_id", id).
		Int("keys", len(keys)).
		Int("migrated", migrated).
		Msg("server removed")

	return true
}

// Get resolves the key's owner and reads from it. A missing or inactive
// owner counts as a miss, not an error: callers see pkg.ErrKeyNotFound.
func (c *Cluster) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, pkg.ErrEmptyKey
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	c.totalRequests.Add(1)

	srv, ok, err := c.ring.Locate(key)
	if err != nil {
		return nil, err
	}
	if !ok || !srv.IsActive() {
		c.totalMisses.Add(1)
		return nil, pkg.ErrKeyNotFound
	}

	value, err := srv.Get(key)
	if err != nil {
		// Absence and a server going inactive mid-call look the same here.
		c.totalMisses.Add(1)
		return nil, pkg.ErrKeyNotFound
	}

	c.totalHits.Add(1)
	return value, nil
}

// Put resolves the key's owner and writes through to it, returning the
// previous value. Fails with pkg.ErrNoActiveServer on an empty ring and
// pkg.ErrServerUnavailable when the owner is inactive.
func (c *Cluster) Put(key string, value []byte) ([]byte, error) {
	if key == "" {
		return nil, pkg.ErrEmptyKey
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	srv, ok, err := c.ring.Locate(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pkg.ErrNoActiveServer
	}
	if !srv.IsActive() {
		return nil, pkg.ErrServerUnavailable
	}

	return srv.Put(key, value)
}

// Remove deletes the key from its owner and returns the removed value. A
// missing or inactive owner means there is nothing to remove; that is not
// an error.
func (c *Cluster) Remove(key string) ([]byte, error) {
	if key == "" {
		return nil, pkg.ErrEmptyKey
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	srv, ok, err := c.ring.Locate(key)
	if err != nil {
		return nil, err
	}
	if !ok || !srv.IsActive() {
		return nil, nil
	}

	removed, err := srv.Remove(key)
	if err != nil {
		if errors.Is(err, pkg.ErrServerUnavailable) {
			return nil, nil
		}
		return nil, err
	}
	return removed, nil
}

// ContainsKey reports whether the key exists on its owning server. Missing
// or inactive owners report false.
func (c *Cluster) ContainsKey(key string) (bool, error) {
	if key == "" {
		return false, pkg.ErrEmptyKey
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	srv, ok, err := c.ring.Locate(key)
	if err != nil {
		return false, err
	}
	if !ok || !srv.IsActive() {
		return false, nil
	}

	contains, err := srv.Contains(key)
	if err != nil {
		return false, nil
	}
	return contains, nil
}

// GetServer returns the server registered under the id.
func (c *Cluster) GetServer(id string) (*cache.Server, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	srv, ok := c.servers[id]
	return srv, ok
}

// ListServers returns a copy of the registry.
func (c *Cluster) ListServers() map[string]*cache.Server {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]*cache.Server, len(c.servers))
	for id, srv := range c.servers {
		out[id] = srv
	}
	return out
}

// ActiveServerCount returns the number of servers currently active.
func (c *Cluster) ActiveServerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, srv := range c.servers {
		if srv.IsActive() {
			count++
		}
	}
	return count
}

// TotalServerCount returns the number of registered servers, active or not.
func (c *Cluster) TotalServerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.servers)
}

// SimulateFailure marks the server inactive without touching the ring. Keys
// keep resolving to it; operations against it fail until Recover. Returns
// false if the id is unknown.
func (c *Cluster) SimulateFailure(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	srv, ok := c.servers[id]
	if !ok {
		return false
	}

	srv.Deactivate()
	c.logger.Warn().Str("server_id", id).Msg("server failure simulated")
	return true
}

// Recover reactivates a failed server. No keys move; the server's ring
// positions never changed. Returns false if the id is unknown.
func (c *Cluster) Recover(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	srv, ok := c.servers[id]
	if !ok {
		return false
	}

	srv.Activate()
	c.logger.Info().Str("server_id", id).Msg("server recovered")
	return true
}

// Stats returns an aggregate snapshot. Total keys are counted across active
// servers only; per-server stats cover every registered server, sorted by
// id.
func (c *Cluster) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		TotalServers:  len(c.servers),
		TotalRequests: c.totalRequests.Load(),
		TotalHits:     c.totalHits.Load(),
		TotalMisses:   c.totalMisses.Load(),
		KeyMigrations: c.keyMigrations.Load(),
		Servers:       make([]cache.ServerStats, 0, len(c.servers)),
	}

	for _, srv := range c.servers {
		if srv.IsActive() {
			stats.ActiveServers++
			stats.TotalKeys += srv.Size()
		}
		stats.Servers = append(stats.Servers, srv.Stats())
	}

	sort.Slice(stats.Servers, func(i, j int) bool {
		return stats.Servers[i].ServerID < stats.Servers[j].ServerID
	})

	if stats.TotalRequests > 0 {
		stats.HitRate = float64(stats.TotalHits) / float64(stats.TotalRequests) * 100
	}

	return stats
}

// DistributionStats counts how many of the given keys each server would
// own, keyed by server id. Diagnostic only; no server is contacted.
func (c *Cluster) DistributionStats(keys []string) map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	distribution := c.ring.Distribution(keys)

	out := make(map[string]int, len(distribution))
	for srv, count := range distribution {
		out[srv.ID()] = count
	}
	return out
}

// ClearAll wipes the data on every active server and resets the aggregate
// counters. Ring membership is untouched.
func (c *Cluster) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, srv := range c.servers {
		if srv.IsActive() {
			if err := srv.Clear(); err != nil {
				c.logger.Debug().Str("server_id", srv.ID()).Err(err).Msg("clear skipped")
			}
		}
	}

	c.totalRequests.Store(0)
	c.totalHits.Store(0)
	c.totalMisses.Store(0)
	c.keyMigrations.Store(0)

	c.logger.Info().Msg("cluster data cleared")
}

// migrateKeys transfers each key from the detached server to its newly
// resolved owner. Best-effort by contract: a key whose read, resolution, or
// write fails is dropped without retry. Caller holds the write lock.
func (c *Cluster) migrateKeys(keys []string, removed *cache.Server) int {
	migrated := 0
	for _, key := range keys {
		value, err := removed.Get(key)
		if err != nil || value == nil {
			continue
		}

		target, ok, err := c.ring.Locate(key)
		if err != nil || !ok || !target.IsActive() {
			c.logger.Debug().Str("key", key).Msg("no owner for migrated key, dropping")
			continue
		}

		if _, err := target.Put(key, value); err != nil {
			c.logger.Debug().
				Str("key", key).
				Str("target", target.ID()).
				Err(err).
				Msg("key migration failed, dropping")
			continue
		}

		migrated++
		c.keyMigrations.Add(1)
	}
	return migrated
}
