// Package hash maps keys and virtual-node identifiers onto the 64-bit ring
// space. SHA-256 keeps the distribution uniform; only the first 8 bytes of
// the digest are kept, interpreted big-endian.
package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"strconv"
)

// Sum64 hashes arbitrary data to a 64-bit ring position.
func Sum64(data []byte) uint64 {
	digest := sha256.Sum256(data)
	return binary.BigEndian.Uint64(digest[:8])
}

// Sum64String hashes a string to a 64-bit ring position.
func Sum64String(s string) uint64 {
	return Sum64([]byte(s))
}

// VirtualNode hashes replica i of the given identifier. The identifier and
// replica index are joined as "<id>:<i>", so the same (id, i) pair always
// lands on the same ring position.
func VirtualNode(id string, i int) uint64 {
	return Sum64String(id + ":" + strconv.Itoa(i))
}
