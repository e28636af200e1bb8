// Package fliptable implements binary lookup tables expressing the
// bitflips a particular DRAM chip produces when rows near a hammered
// row are disturbed. A fliptable is the compiled form of a rowhammer
// profiling run: any valid profiling output can be losslessly expressed
// as one or more fliptables, and a fliptable can be expanded back into
// human-readable ranges. The hammering conditions themselves (pattern,
// duration, refresh interval) are not recorded in the file; that lives
// in an out-of-band metadata file.
package fliptable

import (
	"encoding/binary"
	"errors"

	"github.com/vusec/hammertime-go/pkg/ramses"
)

// FileMagic identifies a fliptable binary file.
const FileMagic uint32 = 0xf11b7ab1

// ErrIO is returned when the fliptable file can't be read.
var ErrIO = errors.New("fliptable: io error")

// ErrBadMagic is returned when a file's header doesn't start with FileMagic.
var ErrBadMagic = errors.New("fliptable: bad magic")

// ErrMmap is returned when the fliptable's backing memory-map fails.
var ErrMmap = errors.New("fliptable: mmap failed")

// fileHeader is the fixed 52-byte on-disk header preceding the range,
// hammering and flip tables. All fields are little-endian.
type fileHeader struct {
	Magic        uint32
	Dist         uint32
	Size         uint64
	RangeTblOff  uint64
	HammerTblOff uint64
	FlipTblOff   uint64
	NumRanges    uint32
	NumHammers   uint32
	NumFlips     uint32
}

const fileHeaderSize = 4 + 4 + 8 + 8 + 8 + 8 + 4 + 4 + 4

// Flip describes a single bitflip: the cell within a row and which way it
// flipped (pull-up sets a 0 bit to 1, pull-down the reverse).
type Flip struct {
	Location ramses.DRAMAddr
	CellByte uint16
	Pullup   uint8
	Pulldown uint8
}

// Hammering is a contiguous run of Flip entries produced by hammering one
// neighbour row at one particular distance.
type Hammering struct {
	NumFlips uint32
	FlipIdx  uint32
}

// Range is a contiguous run of rows, all on the same bank, for which
// hammering data was recorded; Hammering entries for row i of the range
// live at HamIdx+i.
type Range struct {
	Start      ramses.DRAMAddr
	NumHammers uint32
	HamIdx     uint32
}

// dramAddrSize is the on-disk encoding size of a ramses.DRAMAddr: four
// byte-sized fields and two uint16 fields, packed with no padding.
const dramAddrSize = 4 + 2 + 2

func putDRAMAddr(buf []byte, a ramses.DRAMAddr) {
	buf[0] = a.Chan
	buf[1] = a.Dimm
	buf[2] = a.Rank
	buf[3] = a.Bank
	binary.LittleEndian.PutUint16(buf[4:6], a.Row)
	binary.LittleEndian.PutUint16(buf[6:8], a.Col)
}

func getDRAMAddr(buf []byte) ramses.DRAMAddr {
	return ramses.DRAMAddr{
		Chan: buf[0],
		Dimm: buf[1],
		Rank: buf[2],
		Bank: buf[3],
		Row:  binary.LittleEndian.Uint16(buf[4:6]),
		Col:  binary.LittleEndian.Uint16(buf[6:8]),
	}
}

const flipSize = dramAddrSize + 2 + 1 + 1

func getFlip(buf []byte) Flip {
	return Flip{
		Location: getDRAMAddr(buf[0:dramAddrSize]),
		CellByte: binary.LittleEndian.Uint16(buf[dramAddrSize : dramAddrSize+2]),
		Pullup:   buf[dramAddrSize+2],
		Pulldown: buf[dramAddrSize+3],
	}
}

func putFlip(buf []byte, f Flip) {
	putDRAMAddr(buf[0:dramAddrSize], f.Location)
	binary.LittleEndian.PutUint16(buf[dramAddrSize:dramAddrSize+2], f.CellByte)
	buf[dramAddrSize+2] = f.Pullup
	buf[dramAddrSize+3] = f.Pulldown
}

const hammeringSize = 4 + 4

func getHammering(buf []byte) Hammering {
	return Hammering{
		NumFlips: binary.LittleEndian.Uint32(buf[0:4]),
		FlipIdx:  binary.LittleEndian.Uint32(buf[4:8]),
	}
}

func putHammering(buf []byte, h Hammering) {
	binary.LittleEndian.PutUint32(buf[0:4], h.NumFlips)
	binary.LittleEndian.PutUint32(buf[4:8], h.FlipIdx)
}

const rangeSize = dramAddrSize + 4 + 4

func getRange(buf []byte) Range {
	return Range{
		Start:      getDRAMAddr(buf[0:dramAddrSize]),
		NumHammers: binary.LittleEndian.Uint32(buf[dramAddrSize : dramAddrSize+4]),
		HamIdx:     binary.LittleEndian.Uint32(buf[dramAddrSize+4 : dramAddrSize+8]),
	}
}

func putRange(buf []byte, r Range) {
	putDRAMAddr(buf[0:dramAddrSize], r.Start)
	binary.LittleEndian.PutUint32(buf[dramAddrSize:dramAddrSize+4], r.NumHammers)
	binary.LittleEndian.PutUint32(buf[dramAddrSize+4:dramAddrSize+8], r.HamIdx)
}

func getHeader(buf []byte) fileHeader {
	return fileHeader{
		Magic:        binary.LittleEndian.Uint32(buf[0:4]),
		Dist:         binary.LittleEndian.Uint32(buf[4:8]),
		Size:         binary.LittleEndian.Uint64(buf[8:16]),
		RangeTblOff:  binary.LittleEndian.Uint64(buf[16:24]),
		HammerTblOff: binary.LittleEndian.Uint64(buf[24:32]),
		FlipTblOff:   binary.LittleEndian.Uint64(buf[32:40]),
		NumRanges:    binary.LittleEndian.Uint32(buf[40:44]),
		NumHammers:   binary.LittleEndian.Uint32(buf[44:48]),
		NumFlips:     binary.LittleEndian.Uint32(buf[48:52]),
	}
}

func putHeader(buf []byte, h fileHeader) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Dist)
	binary.LittleEndian.PutUint64(buf[8:16], h.Size)
	binary.LittleEndian.PutUint64(buf[16:24], h.RangeTblOff)
	binary.LittleEndian.PutUint64(buf[24:32], h.HammerTblOff)
	binary.LittleEndian.PutUint64(buf[32:40], h.FlipTblOff)
	binary.LittleEndian.PutUint32(buf[40:44], h.NumRanges)
	binary.LittleEndian.PutUint32(buf[44:48], h.NumHammers)
	binary.LittleEndian.PutUint32(buf[48:52], h.NumFlips)
}
