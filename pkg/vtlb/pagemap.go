package vtlb

import (
	"errors"
	"fmt"
	"io"

	"github.com/vusec/hammertime-go/pkg/ramses"
)

// ErrNotMapped indicates a pagemap lookup found the page not resident:
// present bit 63 of the pagemap entry was clear.
var ErrNotMapped = errors.New("vtlb: page not mapped")

// TranslatePagemap resolves a virtual address to a physical one by
// reading the kernel's /proc/<pid>/pagemap format at the entry for
// vaddr's page: an 8-byte little-endian record at offset (vaddr>>12)*8.
// Bit 63 set means present; bits [0:55) are the physical frame number.
func TranslatePagemap(vaddr uint64, pagemap io.ReaderAt) (ramses.PhysAddr, error) {
	var buf [8]byte
	off := int64((vaddr >> 12) * 8)
	if _, err := pagemap.ReadAt(buf[:], off); err != nil {
		return ramses.BadPhysAddr, fmt.Errorf("vtlb: read pagemap entry at %#x: %w", off, err)
	}

	entry := uint64(buf[0]) | uint64(buf[1])<<8 | uint64(buf[2])<<16 | uint64(buf[3])<<24 |
		uint64(buf[4])<<32 | uint64(buf[5])<<40 | uint64(buf[6])<<48 | uint64(buf[7])<<56

	if entry&(1<<63) == 0 {
		return ramses.BadPhysAddr, ErrNotMapped
	}

	pfn := entry & ((1 << 55) - 1)
	return ramses.PhysAddr((pfn << 12) + (vaddr & 0xfff)), nil
}
