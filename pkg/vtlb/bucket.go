// Package vtlb implements a time-aware virtual-to-physical address cache:
// a ring of generations, each a small open-addressed hash table, that
// trades translation precision for speed the way a real hardware TLB
// does, except generations age out on a caller-driven clock instead of
// silicon.
package vtlb

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// emptyKey is the sentinel marking an unused slot.
const emptyKey = ^uint64(0)

// Handle is an opaque reference to a bucket slot returned by Search and
// consumed by Get/Insert, letting a caller avoid a second hash on the
// common search-then-insert path. Callers must not construct or inspect
// one directly; its layout is free to change per Bucket implementation.
type Handle struct {
	slot  uint32
	probe int
}

// Bucket is one generation's key/value store: a virtual page frame number
// maps to a physical one. Implementations are expected to be simple open
// addressing tables — correctness matters far more than raw throughput
// here, since a bucket only ever holds one generation's worth of entries.
type Bucket interface {
	// Search probes for key, returning whether it was found and a handle
	// usable with Get/Insert. The handle is stable only until the next
	// Clear or a different Insert lands in the same slot.
	Search(key uint64) (present bool, handle Handle)
	// Get returns the value stored at handle, or emptyKey if handle is
	// out of range.
	Get(handle Handle) uint64
	// Insert writes key/value at handle's slot unconditionally.
	Insert(key, value uint64, handle Handle)
	// Clear resets every slot to empty.
	Clear()
}

// HashFunc maps a 64-bit key into a slot index in [0, size).
type HashFunc func(key uint64, size uint32) uint32

// HashTrivial is the simplest possible hash: modulo the table size.
func HashTrivial(key uint64, size uint32) uint32 {
	return uint32(key % uint64(size))
}

// HashTwang6432 is Thomas Wang's 64-bit-to-32-bit integer mix, the
// preferred hash for VTLB generations: it spreads sequential virtual page
// numbers far better than the trivial modulo.
func HashTwang6432(key uint64, size uint32) uint32 {
	key = ^key + (key << 18)
	key ^= key >> 31
	key *= 21
	key ^= key >> 11
	key += key << 6
	key ^= key >> 22
	return uint32(key % uint64(size))
}

// HashXXH64 hashes key through xxhash instead of Thomas Wang's integer mix.
// It isn't the default generation hash, but it's faster on callers that
// churn through many more virtual page numbers per generation than
// HashTwang6432 was tuned for.
func HashXXH64(key uint64, size uint32) uint32 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], key)
	return uint32(xxhash.Sum64(buf[:]) % uint64(size))
}

// HashBucket is an open-addressing Bucket: Search probes up to ProbeLimit
// consecutive slots starting at Hash(key) % len(slots), wrapping around.
type HashBucket struct {
	Hash       HashFunc
	ProbeLimit int
	slots      []bucketEntry
}

type bucketEntry struct {
	key, value uint64
}

// NewHashBucket allocates a HashBucket with size slots, all initially
// empty.
func NewHashBucket(size uint32, hash HashFunc, probeLimit int) *HashBucket {
	b := &HashBucket{
		Hash:       hash,
		ProbeLimit: probeLimit,
		slots:      make([]bucketEntry, size),
	}
	b.Clear()
	return b
}

// Search mirrors the reference hash table's probe loop exactly, including
// its quirk that when every probed slot is occupied by a different key,
// the returned handle points at the original hash slot (p is only ever
// advanced when a break occurs on a match or an empty slot).
func (b *HashBucket) Search(key uint64) (bool, Handle) {
	size := uint32(len(b.slots))
	p := b.Hash(key, size)
	i := 0
	found := false
	for ; i < b.ProbeLimit; i++ {
		slot := (p + uint32(i)) % size
		ekey := b.slots[slot].key
		if ekey == key {
			found = true
			p = slot
			break
		}
		if ekey == emptyKey {
			p = slot
			break
		}
	}
	return found, Handle{slot: p, probe: i}
}

func (b *HashBucket) Get(handle Handle) uint64 {
	if int(handle.slot) < len(b.slots) {
		return b.slots[handle.slot].value
	}
	return emptyKey
}

func (b *HashBucket) Insert(key, value uint64, handle Handle) {
	if int(handle.slot) < len(b.slots) {
		b.slots[handle.slot] = bucketEntry{key: key, value: value}
	}
}

func (b *HashBucket) Clear() {
	for i := range b.slots {
		b.slots[i] = bucketEntry{key: emptyKey, value: emptyKey}
	}
}
