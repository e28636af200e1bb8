package fliptable

import (
	"bytes"
	"io"
)

// Builder accumulates ranges, hammerings and flips and serializes them
// into the on-disk fliptable format used by Load. It exists so tests and
// metadata-to-binary conversion tools can produce a fliptable without
// reaching for an external compiler: build one up field by field, then
// WriteTo a file and Load it back.
type Builder struct {
	Dist       uint32
	Ranges     []Range
	Hammerings []Hammering
	Flips      []Flip
}

// AddRange appends a range whose Hammering entries start at the current
// end of the builder's hammering table, returning the new range's index
// in b.Ranges.
func (b *Builder) AddRange(start Range) uint32 {
	start.HamIdx = uint32(len(b.Hammerings))
	idx := uint32(len(b.Ranges))
	b.Ranges = append(b.Ranges, start)
	return idx
}

// AddHammering appends a hammering whose Flip entries start at the
// current end of the builder's flip table.
func (b *Builder) AddHammering(flips ...Flip) Hammering {
	h := Hammering{
		NumFlips: uint32(len(flips)),
		FlipIdx:  uint32(len(b.Flips)),
	}
	b.Hammerings = append(b.Hammerings, h)
	b.Flips = append(b.Flips, flips...)
	return h
}

// WriteTo serializes the builder's tables into w in the fliptable binary
// format, header first, followed by the range, hammering and flip tables
// in that order.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	rangeTblOff := uint64(fileHeaderSize)
	hammerTblOff := rangeTblOff + uint64(len(b.Ranges))*rangeSize
	flipTblOff := hammerTblOff + uint64(len(b.Hammerings))*hammeringSize
	size := flipTblOff + uint64(len(b.Flips))*flipSize

	buf := make([]byte, size)
	putHeader(buf[0:fileHeaderSize], fileHeader{
		Magic:        FileMagic,
		Dist:         b.Dist,
		Size:         size,
		RangeTblOff:  rangeTblOff,
		HammerTblOff: hammerTblOff,
		FlipTblOff:   flipTblOff,
		NumRanges:    uint32(len(b.Ranges)),
		NumHammers:   uint32(len(b.Hammerings)),
		NumFlips:     uint32(len(b.Flips)),
	})
	for i, r := range b.Ranges {
		off := rangeTblOff + uint64(i)*rangeSize
		putRange(buf[off:off+rangeSize], r)
	}
	for i, h := range b.Hammerings {
		off := hammerTblOff + uint64(i)*hammeringSize
		putHammering(buf[off:off+hammeringSize], h)
	}
	for i, f := range b.Flips {
		off := flipTblOff + uint64(i)*flipSize
		putFlip(buf[off:off+flipSize], f)
	}

	n, err := w.Write(buf)
	return int64(n), err
}

// Bytes returns the built fliptable's binary representation directly,
// without going through an io.Writer.
func (b *Builder) Bytes() []byte {
	var buf bytes.Buffer
	_, _ = b.WriteTo(&buf)
	return buf.Bytes()
}
