package vtlb

import (
	"errors"
	"io"
	"time"

	"github.com/vusec/hammertime-go/pkg/ramses"
)

// ErrInvalidParams is returned by New/NewCustomBuckets when the requested
// generation count, size, or trust window doesn't make sense.
var ErrInvalidParams = errors.New("vtlb: invalid parameters")

// VTLB is a time-aware virtual-to-physical page frame cache: an ordered
// ring of generations, each a Bucket, where head holds the youngest
// generation and tail the oldest. Old generations age out once the
// caller-driven clock says more time has passed than the configured trust
// window allows.
type VTLB struct {
	ngen   uint32
	actgen uint32
	head   uint32
	tail   uint32

	buckets []Bucket
	pagemap io.ReaderAt

	savedTime   int64
	genAgeLimit int64
	pushLimit   int64
}

// New creates a VTLB backed by gensize-slot HashBucket generations using
// HashTwang6432, a fixed probe limit of 64, numGen generations, a trust
// window of [minTrust, maxTrust), and an optional pagemap reader for
// Lookup's fallback path.
func New(genSize uint32, numGen uint32, minTrust, maxTrust time.Duration, pagemap io.ReaderAt) (*VTLB, error) {
	if genSize == 0 || numGen == 0 || maxTrust <= 0 || minTrust > maxTrust {
		return nil, ErrInvalidParams
	}
	buckets := make([]Bucket, numGen)
	for i := range buckets {
		buckets[i] = NewHashBucket(genSize, HashTwang6432, 64)
	}
	return &VTLB{
		ngen:        numGen,
		buckets:     buckets,
		pagemap:     pagemap,
		genAgeLimit: int64(maxTrust) / int64(numGen),
		pushLimit:   int64(minTrust) / int64(numGen),
	}, nil
}

// NewCustomBuckets creates a VTLB over caller-supplied Bucket generations,
// for example to plug in HashTrivial for testing or a bucket kind other
// than HashBucket.
func NewCustomBuckets(buckets []Bucket, minTrust, maxTrust time.Duration, pagemap io.ReaderAt) (*VTLB, error) {
	if len(buckets) == 0 || maxTrust <= 0 || minTrust > maxTrust {
		return nil, ErrInvalidParams
	}
	return &VTLB{
		ngen:        uint32(len(buckets)),
		buckets:     buckets,
		pagemap:     pagemap,
		genAgeLimit: int64(maxTrust) / int64(len(buckets)),
		pushLimit:   int64(minTrust) / int64(len(buckets)),
	}, nil
}

// SetPagemap replaces the pagemap reader Lookup falls back to, e.g. after
// the target process's pagemap fd had to be reopened.
func (v *VTLB) SetPagemap(pagemap io.ReaderAt) {
	v.pagemap = pagemap
}

func (v *VTLB) genPop() {
	v.buckets[v.tail].Clear()
	if v.actgen > 0 {
		v.tail = (v.tail + 1) % v.ngen
		v.actgen--
	}
}

func (v *VTLB) genPush() {
	v.head = (v.head + 1) % v.ngen
	v.actgen++
	if v.actgen == v.ngen {
		v.genPop()
	}
}

// handleTimed advances the generation ring by timed nanoseconds,
// returning the time remaining once any due aging has been applied.
func (v *VTLB) handleTimed(timed int64) int64 {
	genage := v.genAgeLimit
	agen := int64(v.actgen) // cached: the while loop below intentionally
	// checks against the original active-generation count, not the
	// count as it shrinks across iterations.
	maxTrust := int64(v.ngen) * genage

	if timed > maxTrust {
		v.Flush()
		return timed
	}
	for timed > maxTrust-(agen*genage) {
		v.genPop()
		timed -= genage
	}
	if timed > v.pushLimit {
		v.genPush()
	}
	return timed
}

// UpdateTimeDelta advances the VTLB's clock by deltaNanos nanoseconds
// since the last time update. The first call to either UpdateTimeDelta or
// UpdateTimestamp fixes which of the two time modes is in use; switching
// modes triggers an implicit flush via the saved-time discontinuity.
func (v *VTLB) UpdateTimeDelta(deltaNanos int64) {
	if v.savedTime != 0 {
		deltaNanos += v.savedTime
	}
	rem := v.handleTimed(deltaNanos)
	if rem > v.pushLimit {
		v.savedTime = 0
	} else {
		v.savedTime = rem
	}
}

// UpdateTimestamp advances the VTLB's clock to the absolute timestamp
// nowNanos. A timestamp that goes backwards relative to the last call
// flushes the whole cache, since monotonicity is the one invariant the
// aging logic depends on.
func (v *VTLB) UpdateTimestamp(nowNanos int64) {
	timed := nowNanos - v.savedTime
	if timed < 0 {
		v.Flush()
		v.savedTime = nowNanos
	} else if timed > v.pushLimit {
		v.handleTimed(timed)
		v.savedTime = nowNanos
	}
}

// Update writes vpfn -> pfn into the head (youngest) generation,
// replacing any prior mapping for vpfn. pfn, like vpfn, is a page frame
// number (a byte address shifted right by 12), not a full byte address —
// Search and Lookup return values in the same unit so a cache hit and a
// fresh pagemap translation are interchangeable to the caller.
func (v *VTLB) Update(vpfn uint64, pfn ramses.PhysAddr) {
	_, handle := v.buckets[v.head].Search(vpfn)
	v.buckets[v.head].Insert(vpfn, uint64(pfn), handle)
}

// Search probes the head generation, then each active older generation
// in youth order, returning ramses.BadPhysAddr if vpfn isn't cached
// anywhere. The result is a page frame number, see Update.
func (v *VTLB) Search(vpfn uint64) ramses.PhysAddr {
	if present, handle := v.buckets[v.head].Search(vpfn); present {
		return ramses.PhysAddr(v.buckets[v.head].Get(handle))
	}

	gen := v.head
	for i := v.actgen; i > 0; i-- {
		gen = (gen + v.ngen - 1) % v.ngen
		if present, handle := v.buckets[gen].Search(vpfn); present {
			return ramses.PhysAddr(v.buckets[gen].Get(handle))
		}
	}
	return ramses.BadPhysAddr
}

// Lookup is Search with a pagemap fallback: on a full miss it consults
// the configured pagemap reader and, if the page is resident, caches the
// translation in the head generation before returning it. Like Search, it
// returns a page frame number.
func (v *VTLB) Lookup(vpfn uint64) ramses.PhysAddr {
	if retval := v.Search(vpfn); retval != ramses.BadPhysAddr {
		return retval
	}
	if v.pagemap == nil {
		return ramses.BadPhysAddr
	}
	pa, err := TranslatePagemap(vpfn<<12, v.pagemap)
	if err != nil {
		return ramses.BadPhysAddr
	}
	pfn := ramses.PhysAddr(uint64(pa) >> 12)
	v.Update(vpfn, pfn)
	return pfn
}

// Flush clears every generation and resets the ring to empty.
func (v *VTLB) Flush() {
	for v.actgen > 0 {
		v.genPop()
	}
	v.genPop()
}
