// Package probe implements the producer/consumer byte ring an upstream
// memory-operation probe writes into and a flip loop reads from: a
// fixed-size buffer addressed by a monotonic, never-wrapping byte
// offset, with mutex/condvar signalling between exactly one writer and
// one reader. See spec.md §4.H; this is hammertime's only core
// suspension point.
package probe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// FmtFlags selects which optional fields accompany a MemOp record.
type FmtFlags uint32

const (
	// FlagVirtAddr includes a virtual address alongside every MemOp's
	// physical address.
	FlagVirtAddr FmtFlags = 1 << iota
	// FlagOpStats includes a MemOpStats record alongside every MemOp.
	FlagOpStats
)

// BadAddr is the physical-address sentinel that discriminates a Time
// record from a MemOp record in the byte stream.
const BadAddr = ^uint64(0)

// memOpStatsSize is the encoded size of a MemOpStats: a pid plus a
// packed isstore/reserved/custflags word.
const memOpStatsSize = 8

// MemOpStats carries the probe-specific metadata PROBEOUT_OPSTATS adds
// to a MemOp record.
type MemOpStats struct {
	PID       int32
	IsStore   bool
	CustFlags uint32 // low 24 bits significant
}

func encodeMemOpStats(s MemOpStats) [memOpStatsSize]byte {
	var buf [memOpStatsSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(s.PID))
	word := s.CustFlags & 0xffffff << 8
	if s.IsStore {
		word |= 1
	}
	binary.LittleEndian.PutUint32(buf[4:8], word)
	return buf
}

func decodeMemOpStats(buf []byte) MemOpStats {
	word := binary.LittleEndian.Uint32(buf[4:8])
	return MemOpStats{
		PID:       int32(binary.LittleEndian.Uint32(buf[0:4])),
		IsStore:   word&1 != 0,
		CustFlags: (word >> 8) & 0xffffff,
	}
}

// ErrBadSize is returned by NewRing when size doesn't satisfy the
// ring's layout invariants (a multiple of 8 bytes, and of the
// MemOpStats record size when FlagOpStats is set).
var ErrBadSize = errors.New("probe: data_size must be a multiple of 8 (and of the stats record size when OPSTATS is set)")

// Ring is a ProbeOutput: a fixed-size byte buffer shared between a
// single producer and a single consumer, addressed by a monotonic head
// offset that never wraps (only `head mod size` does). The zero value is
// not usable; construct with NewRing.
type Ring struct {
	data  []byte
	size  uint64
	flags FmtFlags

	mu       sync.Mutex
	cond     *sync.Cond
	head     uint64
	finished bool
}

// NewRing allocates a size-byte ring with the given format flags.
func NewRing(size uint64, flags FmtFlags) (*Ring, error) {
	if size == 0 || size%8 != 0 {
		return nil, ErrBadSize
	}
	if flags&FlagOpStats != 0 && size%memOpStatsSize != 0 {
		return nil, ErrBadSize
	}
	r := &Ring{data: make([]byte, size), size: size, flags: flags}
	r.cond = sync.NewCond(&r.mu)
	return r, nil
}

// Flags reports the ring's configured format flags.
func (r *Ring) Flags() FmtFlags { return r.flags }

// Size reports the ring's buffer size in bytes.
func (r *Ring) Size() uint64 { return r.size }

func (r *Ring) writeAt(off uint64, b []byte) {
	o := off % r.size
	n := copy(r.data[o:], b)
	if n < len(b) {
		copy(r.data, b[n:])
	}
}

func (r *Ring) readAt(off uint64, n int) []byte {
	buf := make([]byte, n)
	o := off % r.size
	c := copy(buf, r.data[o:])
	if c < n {
		copy(buf[c:], r.data[:n-c])
	}
	return buf
}

// publish advances head by n bytes and wakes any waiting consumer. Only
// the single producer may call Append*/Finish; the ring performs no
// internal locking around the buffer write itself, matching spec.md
// §5's single-producer assumption.
func (r *Ring) publish(n uint64) uint64 {
	r.mu.Lock()
	r.head += n
	h := r.head
	r.mu.Unlock()
	r.cond.Broadcast()
	return h
}

// AppendMemOp writes a memory-operation record at the current head: the
// physical address, the virtual address (if FlagVirtAddr is set), and
// stats (if FlagOpStats is set). phys must not equal BadAddr; the ring
// does not check this since only the producer's discipline can.
func (r *Ring) AppendMemOp(phys, virt uint64, stats MemOpStats) uint64 {
	buf := make([]byte, 0, 8+8+memOpStatsSize)
	buf = binary.LittleEndian.AppendUint64(buf, phys)
	if r.flags&FlagVirtAddr != 0 {
		buf = binary.LittleEndian.AppendUint64(buf, virt)
	}
	if r.flags&FlagOpStats != 0 {
		enc := encodeMemOpStats(stats)
		buf = append(buf, enc[:]...)
	}
	r.writeAt(r.head, buf)
	return r.publish(uint64(len(buf)))
}

// AppendTimeDelta writes a time-update record expressing a relative
// advance of deltaNanos nanoseconds (must be >= 0; it is stored negated
// per the wire format's delta/timestamp discriminant).
func (r *Ring) AppendTimeDelta(deltaNanos int64) uint64 {
	return r.appendTime(-deltaNanos)
}

// AppendTimestamp writes a time-update record expressing the absolute
// timestamp nowNanos (must be >= 0).
func (r *Ring) AppendTimestamp(nowNanos int64) uint64 {
	return r.appendTime(nowNanos)
}

func (r *Ring) appendTime(v int64) uint64 {
	buf := make([]byte, 0, 16)
	buf = binary.LittleEndian.AppendUint64(buf, BadAddr)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(v))
	r.writeAt(r.head, buf)
	return r.publish(uint64(len(buf)))
}

// Finish marks the ring as complete: no further records will be
// appended. It wakes any consumer blocked in ReadHead so it can observe
// end-of-stream instead of waiting forever.
func (r *Ring) Finish() {
	r.mu.Lock()
	r.finished = true
	r.mu.Unlock()
	r.cond.Broadcast()
}

// Finished reports whether Finish has been called.
func (r *Ring) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// ReadHead is the consumer's only suspension point: given the consumer's
// current offset cur, it returns the latest head once head != cur,
// blocking on the ring's condition variable while head == cur and the
// ring isn't finished. end is true once head == cur and the ring has
// finished — there will never be more data to read.
func (r *Ring) ReadHead(cur uint64) (head uint64, end bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.head == cur && !r.finished {
		r.cond.Wait()
	}
	if r.head == cur {
		return cur, true
	}
	return r.head, false
}

// Overflow reports whether a consumer sitting at cur has lost data: the
// producer has advanced head far enough past cur that bytes cur was
// still going to read have already been overwritten.
func (r *Ring) Overflow(cur, head uint64) bool {
	return head-cur > r.size
}

// Record is one decoded ring entry: either a MemOp or a time update.
type Record struct {
	IsTime bool
	MemOp  MemOp
	// Time is the raw signed value stored on the wire: positive is an
	// absolute timestamp in nanoseconds, negative is a delta (negate
	// for the magnitude). Only meaningful when IsTime is true.
	Time int64
}

// MemOp is a decoded memory-operation record.
type MemOp struct {
	Phys     uint64
	Virt     uint64
	HasVirt  bool
	Stats    MemOpStats
	HasStats bool
}

// Decode reads one record starting at offset cur (cur must be a value
// previously returned by ReadHead or 0) and returns the offset
// immediately following it plus the decoded Record.
func (r *Ring) Decode(cur uint64) (next uint64, rec Record) {
	phys := binary.LittleEndian.Uint64(r.readAt(cur, 8))
	cur += 8
	if phys == BadAddr {
		v := int64(binary.LittleEndian.Uint64(r.readAt(cur, 8)))
		cur += 8
		return cur, Record{IsTime: true, Time: v}
	}

	mo := MemOp{Phys: phys}
	if r.flags&FlagVirtAddr != 0 {
		mo.Virt = binary.LittleEndian.Uint64(r.readAt(cur, 8))
		mo.HasVirt = true
		cur += 8
	}
	if r.flags&FlagOpStats != 0 {
		mo.Stats = decodeMemOpStats(r.readAt(cur, memOpStatsSize))
		mo.HasStats = true
		cur += memOpStatsSize
	}
	return cur, Record{MemOp: mo}
}

// String renders a Record for logging.
func (rec Record) String() string {
	if rec.IsTime {
		return fmt.Sprintf("Time(%d)", rec.Time)
	}
	return fmt.Sprintf("MemOp(phys=%#x virt=%#x stats=%+v)", rec.MemOp.Phys, rec.MemOp.Virt, rec.MemOp.Stats)
}
