package memfile

import (
	"os"
	"testing"
)

func TestFlipBitsTruthTable(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "memfile")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()

	if _, err := f.Write([]byte{0b1010_1010}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := FlipBits(int(f.Fd()), 0, 0b0000_1111, 0b1111_0000); err != nil {
		t.Fatalf("FlipBits: %v", err)
	}

	var buf [1]byte
	if _, err := f.ReadAt(buf[:], 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if buf[0] != 0b0000_1111 {
		t.Errorf("result = %08b, want %08b", buf[0], 0b0000_1111)
	}
}

func TestFlipBitsPullupWinsOnConflict(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "memfile")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()
	if _, err := f.Write([]byte{0b0000_0000}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Bit 0 requested in both pullup and pulldown: pullup must win since
	// it was pulled up from 0 by this very call.
	if err := FlipBits(int(f.Fd()), 0, 0b0000_0001, 0b0000_0001); err != nil {
		t.Fatalf("FlipBits: %v", err)
	}
	var buf [1]byte
	f.ReadAt(buf[:], 0)
	if buf[0] != 0b0000_0001 {
		t.Errorf("result = %08b, want bit 0 set (pullup wins)", buf[0])
	}
}

func TestFlipBitsPulldownClearsAlreadySetBits(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "memfile")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	defer f.Close()
	if _, err := f.Write([]byte{0b0000_0001}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Bit 0 is already 1 and only requested in pulldown (not pullup): it
	// must be cleared since pullup didn't just set it this call.
	if err := FlipBits(int(f.Fd()), 0, 0b0000_0000, 0b0000_0001); err != nil {
		t.Fatalf("FlipBits: %v", err)
	}
	var buf [1]byte
	f.ReadAt(buf[:], 0)
	if buf[0] != 0b0000_0000 {
		t.Errorf("result = %08b, want 0", buf[0])
	}
}

func TestOpenPidMemMissingProcess(t *testing.T) {
	if _, err := OpenPidMem(1<<30, false); err == nil {
		t.Error("expected error opening mem of a nonexistent pid")
	}
}
