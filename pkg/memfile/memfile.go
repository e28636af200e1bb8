// Package memfile provides the byte-granular primitives hammertime uses
// to actually mutate a victim's memory: opening /proc/<pid>/mem or
// /dev/mem, and a read-modify-write bit flip against an open
// descriptor.
package memfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// OpenPidMem opens /proc/<pid>/mem for a target process, read-only or
// read-write depending on writable.
func OpenPidMem(pid int, writable bool) (*os.File, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	path := fmt.Sprintf("/proc/%d/mem", pid)
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("memfile: opening %s: %w", path, err)
	}
	return f, nil
}

// OpenDevMem opens /dev/mem for system-wide physical memory access,
// read-only or read-write depending on writable. Writable access
// additionally requests O_SYNC, since physical memory accessed this way
// carries no cache coherency guarantees otherwise.
func OpenDevMem(writable bool) (*os.File, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR | unix.O_SYNC
	}
	f, err := os.OpenFile("/dev/mem", flag, 0)
	if err != nil {
		return nil, fmt.Errorf("memfile: opening /dev/mem: %w", err)
	}
	return f, nil
}

// FlipBits performs a byte-granular read-modify-write against fd at
// offset: it pulls up every bit set in pullup, then pulls down every bit
// set in pulldown that wasn't just pulled up, so a bit requested in both
// masks ends up set (pullup wins on conflict).
func FlipBits(fd int, offset int64, pullup, pulldown uint8) error {
	var buf [1]byte
	if n, err := unix.Pread(fd, buf[:], offset); err != nil || n != 1 {
		if err == nil {
			err = fmt.Errorf("short read (%d bytes)", n)
		}
		return fmt.Errorf("memfile: reading offset %#x: %w", offset, err)
	}

	b := buf[0]
	up := b | pullup
	buf[0] = up &^ (pulldown &^ (b ^ up))

	if n, err := unix.Pwrite(fd, buf[:], offset); err != nil || n != 1 {
		if err == nil {
			err = fmt.Errorf("short write (%d bytes)", n)
		}
		return fmt.Errorf("memfile: writing offset %#x: %w", offset, err)
	}
	return nil
}
