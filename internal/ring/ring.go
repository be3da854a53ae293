// Package ring implements a consistent hashing ring with virtual nodes.
// Keys and members share one 64-bit hash space; a key belongs to the member
// owning the smallest virtual-node hash at or after the key's hash, wrapping
// to the ring minimum. Adding or removing a member only remaps the keys that
// touched that member's virtual nodes.
package ring

import (
	"sort"
	"sync"

	"github.com/zde37/ringcache/pkg"
	"github.com/zde37/ringcache/pkg/hash"
)

// DefaultVirtualNodes is the virtual-node count per member when none is
// configured. 150 gives a good spread for small clusters.
const DefaultVirtualNodes = 150

// Member is the identity a ring entry points back to. Implementations must
// be valid map keys and expose a stable, unique id that virtual-node hashes
// are derived from.
type Member interface {
	comparable
	RingID() string
}

// vnode is one virtual position on the ring.
type vnode[M Member] struct {
	hash   uint64
	member M
}

// Ring is a thread-safe consistent hashing ring generic over its member
// type. Lookups run in O(log n) over the virtual-node count; mutations take
// the write lock, lookups only the read lock.
type Ring[M Member] struct {
	mu       sync.RWMutex
	replicas int
	vnodes   []vnode[M]     // sorted by hash
	members  map[M][]uint64 // member -> its virtual-node hashes
}

// New creates an empty ring with the given number of virtual nodes per
// member. Non-positive values fall back to DefaultVirtualNodes.
func New[M Member](replicas int) *Ring[M] {
	if replicas <= 0 {
		replicas = DefaultVirtualNodes
	}
	return &Ring[M]{
		replicas: replicas,
		members:  make(map[M][]uint64),
	}
}

// Add places a member on the ring under its virtual nodes. Adding a member
// that is already present replaces its previous virtual-node set with a
// recomputed identical one, so membership stays single and the ring size
// does not change.
func (r *Ring[M]) Add(m M) error {
	var zero M
	if m == zero || m.RingID() == "" {
		return pkg.ErrEmptyServerID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[m]; ok {
		r.removeLocked(m)
	}

	hashes := make([]uint64, 0, r.replicas)
	for i := 0; i < r.replicas; i++ {
		h := hash.VirtualNode(m.RingID(), i)
		r.insertLocked(h, m)
		hashes = append(hashes, h)
	}
	r.members[m] = hashes

	return nil
}

// Remove deletes every virtual node owned by the member. Returns whether
// the member was present.
func (r *Ring[M]) Remove(m M) bool {
	var zero M
	if m == zero {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[m]; !ok {
		return false
	}

	r.removeLocked(m)
	delete(r.members, m)
	return true
}

// Locate resolves the member that owns the given key. The second return is
// false when the ring has no members. Locate is side-effect-free and safe
// to call concurrently with other lookups.
func (r *Ring[M]) Locate(key string) (M, bool, error) {
	var zero M
	if key == "" {
		return zero, false, pkg.ErrEmptyKey
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.locate(key)
	return m, ok, nil
}

// Distribution counts how many of the given keys each member owns. Every
// member appears in the result, including ones that own no keys. An empty
// ring yields an empty map.
func (r *Ring[M]) Distribution(keys []string) map[M]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[M]int, len(r.members))
	for m := range r.members {
		counts[m] = 0
	}

	for _, key := range keys {
		if m, ok := r.locate(key); ok {
			counts[m]++
		}
	}

	return counts
}

// Members returns all members currently on the ring.
func (r *Ring[M]) Members() []M {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]M, 0, len(r.members))
	for m := range r.members {
		out = append(out, m)
	}
	return out
}

// IsEmpty reports whether the ring has no members.
func (r *Ring[M]) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.vnodes) == 0
}

// MemberCount returns the number of members on the ring.
func (r *Ring[M]) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// VirtualNodeCount returns the total number of virtual nodes on the ring.
// This is replicas * members minus any hash collisions.
func (r *Ring[M]) VirtualNodeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.vnodes)
}

// Clear removes every member and virtual node from the ring.
func (r *Ring[M]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vnodes = nil
	r.members = make(map[M][]uint64)
}

// locate is the ceiling lookup. Callers must hold at least the read lock.
func (r *Ring[M]) locate(key string) (M, bool) {
	var zero M
	if len(r.vnodes) == 0 {
		return zero, false
	}

	h := hash.Sum64String(key)
	idx := sort.Search(len(r.vnodes), func(i int) bool {
		return r.vnodes[i].hash >= h
	})

	// Past the last virtual node: wrap to the ring minimum.
	if idx == len(r.vnodes) {
		idx = 0
	}

	return r.vnodes[idx].member, true
}

// insertLocked inserts one virtual node keeping the slice sorted. Two
// virtual-node identifiers hashing to the same value is a collision: the
// later insertion overwrites the earlier entry, and the displaced member
// silently loses one ring position. No salting or probing is applied.
func (r *Ring[M]) insertLocked(h uint64, m M) {
	idx := sort.Search(len(r.vnodes), func(i int) bool {
		return r.vnodes[i].hash >= h
	})

	if idx < len(r.vnodes) && r.vnodes[idx].hash == h {
		r.vnodes[idx].member = m
		return
	}

	r.vnodes = append(r.vnodes, vnode[M]{})
	copy(r.vnodes[idx+1:], r.vnodes[idx:])
	r.vnodes[idx] = vnode[M]{hash: h, member: m}
}

// removeLocked drops every virtual node that still points at the member.
// Entries overwritten by a colliding member stay with their current owner.
func (r *Ring[M]) removeLocked(m M) {
	kept := r.vnodes[:0]
	for _, v := range r.vnodes {
		if v.member != m {
			kept = append(kept, v)
		}
	}
	r.vnodes = kept
}
