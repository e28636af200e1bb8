package fliptable

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/vusec/hammertime-go/pkg/ramses"
)

// ExtrapMode controls how Lookup answers a query for an address not found
// verbatim in the table.
type ExtrapMode int

const (
	// ExtrapNone performs a strict lookup: an unrecorded address yields no
	// bitflips.
	ExtrapNone ExtrapMode = iota
	// ExtrapPerBank aliases an unrecorded address into an existing range
	// on the same bank, using the range's recorded length as-is.
	ExtrapPerBank
	// ExtrapPerBankTrunc is ExtrapPerBank with the aliasing range's length
	// truncated down to the nearest power of two.
	ExtrapPerBankTrunc
	// ExtrapPerBankFit fits the aliasing range into a power-of-two-sized
	// virtual range aligned to its own size; addresses falling outside
	// that virtual range yield no bitflips rather than aliasing further.
	ExtrapPerBankFit
)

// FlipTable is a loaded, memory-mapped binary fliptable: the bitflips one
// DRAM chip produces at a given hammer distance, indexed by a binary
// search over contiguous per-bank row ranges.
type FlipTable struct {
	Dist      uint32
	NumRanges uint32

	numHammers uint32
	numFlips   uint32

	rangeTblOff  uint64
	hammerTblOff uint64
	flipTblOff   uint64

	mmap []byte
}

// Load reads a fliptable header from f and memory-maps the whole file
// (the header's Size bytes from offset 0). The returned FlipTable is valid until Close is called; f may
// be closed by the caller immediately after Load returns; the mapping
// keeps its own reference to the underlying pages.
func Load(f *os.File) (*FlipTable, error) {
	hdrBuf := make([]byte, fileHeaderSize)
	if _, err := f.ReadAt(hdrBuf, 0); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrIO, err)
	}
	hdr := getHeader(hdrBuf)
	if hdr.Magic != FileMagic {
		return nil, ErrBadMagic
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(hdr.Size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMmap, err)
	}

	return &FlipTable{
		Dist:         hdr.Dist,
		NumRanges:    hdr.NumRanges,
		numHammers:   hdr.NumHammers,
		numFlips:     hdr.NumFlips,
		rangeTblOff:  hdr.RangeTblOff,
		hammerTblOff: hdr.HammerTblOff,
		flipTblOff:   hdr.FlipTblOff,
		mmap:         data,
	}, nil
}

// Close unmaps the fliptable's backing memory. ft must not be used
// afterwards.
func (ft *FlipTable) Close() error {
	if ft.mmap == nil {
		return nil
	}
	err := unix.Munmap(ft.mmap)
	ft.mmap = nil
	return err
}

func (ft *FlipTable) rangeAt(i uint32) Range {
	off := ft.rangeTblOff + uint64(i)*rangeSize
	return getRange(ft.mmap[off : off+rangeSize])
}

func (ft *FlipTable) hammeringAt(i uint32) Hammering {
	off := ft.hammerTblOff + uint64(i)*hammeringSize
	return getHammering(ft.mmap[off : off+hammeringSize])
}

func (ft *FlipTable) flipAt(i uint32) Flip {
	off := ft.flipTblOff + uint64(i)*flipSize
	return getFlip(ft.mmap[off : off+flipSize])
}

func bitsize(x uint32) uint32 {
	ret := uint32(1)
	for ret <= x {
		ret <<= 1
	}
	return ret
}

// extrapRow computes a bitflip answer for addr by aliasing it into range r,
// which lives on the same bank as addr.
func (ft *FlipTable) extrapRow(addr ramses.DRAMAddr, r Range, extrap ExtrapMode, extrapDiff *ramses.DRAMAddr) []Flip {
	var rsz uint32
	switch extrap {
	case ExtrapPerBankTrunc:
		rsz = bitsize(r.NumHammers) >> 1
	case ExtrapPerBank:
		rsz = r.NumHammers
	case ExtrapPerBankFit:
		rsz = bitsize(r.NumHammers)
		if 4*r.NumHammers < 3*rsz {
			rsz >>= 1
		}
	default:
		return nil
	}
	if rsz == 0 {
		return nil
	}

	var d int
	if extrap == ExtrapPerBankFit {
		mask := int(rsz - 1)
		adj := int(r.Start.Row) & mask
		vstart := r.Start
		vstart.Row &^= uint16(mask)
		d = ramses.RowDiff(addr, vstart) % int(rsz)
		if d < adj || d > adj+int(r.NumHammers) {
			return nil
		}
		d -= adj
	} else {
		d = ramses.RowDiff(addr, r.Start) % int(rsz)
	}

	h := ft.hammeringAt(r.HamIdx + uint32(d))
	if extrapDiff != nil {
		*extrapDiff = ramses.Diff(addr, ramses.AddRows(r.Start, d))
	}
	return ft.flips(h)
}

func (ft *FlipTable) flips(h Hammering) []Flip {
	out := make([]Flip, h.NumFlips)
	for i := range out {
		out[i] = ft.flipAt(h.FlipIdx + uint32(i))
	}
	return out
}

// Lookup answers a rowhammer query targeted at addr, returning the
// recorded bitflips (if any) and, when extrapolation produced the answer,
// the DRAM-address offset a caller must apply to flip locations to map
// them back onto addr's actual neighbourhood. A nil flips slice with a
// zero-value diff means no bitflips are predicted.
func (ft *FlipTable) Lookup(addr ramses.DRAMAddr, extrap ExtrapMode) (flips []Flip, extrapDiff ramses.DRAMAddr) {
	if ft.NumRanges == 0 {
		return nil, ramses.DRAMAddr{}
	}

	var p uint32
	left := ft.NumRanges / 2
	right := ft.NumRanges/2 + ft.NumRanges%2

	for right != 0 {
		idx := p + left
		s := ft.rangeAt(idx).Start
		if ramses.SameBank(addr, s) {
			r := ft.rangeAt(idx)
			d := ramses.RowDiff(addr, s)
			if d > 0 && uint32(d) < r.NumHammers {
				h := ft.hammeringAt(r.HamIdx + uint32(d))
				return ft.flips(h), ramses.DRAMAddr{}
			}
		}
		if ramses.Cmp(addr, s) > 0 {
			p = idx
			left = right / 2
			if right == 1 {
				right = 0
			} else {
				right = right/2 + right%2
			}
		} else {
			right = left/2 + left%2
			left = left / 2
		}
	}

	switch extrap {
	case ExtrapPerBank, ExtrapPerBankTrunc, ExtrapPerBankFit:
		if ramses.SameBank(ft.rangeAt(p).Start, addr) {
			return ft.extrapRow(addr, ft.rangeAt(p), extrap, &extrapDiff), extrapDiff
		}
		if p+1 < ft.NumRanges && ramses.SameBank(ft.rangeAt(p+1).Start, addr) {
			return ft.extrapRow(addr, ft.rangeAt(p+1), extrap, &extrapDiff), extrapDiff
		}
		return nil, ramses.DRAMAddr{}
	default:
		return nil, ramses.DRAMAddr{}
	}
}
