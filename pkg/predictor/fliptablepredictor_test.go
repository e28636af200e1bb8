package predictor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vusec/hammertime-go/pkg/fliptable"
	"github.com/vusec/hammertime-go/pkg/ramses"
)

// buildDoubleSidedFliptable builds a fliptable recording one range whose
// aggressor rows run 97-101 on bank 3, so a double-sided trigger whose
// lower aggressor row is 99 resolves to a recorded flip.
func buildDoubleSidedFliptable(t *testing.T) *fliptable.FlipTable {
	t.Helper()
	b := &fliptable.Builder{Dist: 2}
	start := fliptable.Range{Start: ramses.DRAMAddr{Bank: 3, Row: 97}}
	ri := b.AddRange(start)
	for d := 0; d < 5; d++ {
		b.AddHammering(fliptable.Flip{
			Location: ramses.DRAMAddr{Bank: 3, Row: uint16(97 + d)},
			CellByte: uint16(100 + d),
			Pullup:   1,
		})
	}
	b.Ranges[ri].NumHammers = 5

	dir := t.TempDir()
	path := filepath.Join(dir, "p.ftbl")
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	ft, err := fliptable.Load(f)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { ft.Close() })
	return ft
}

func TestNewFliptablePredictorRejectsModeMismatch(t *testing.T) {
	ft := buildDoubleSidedFliptable(t)
	if _, err := NewFliptablePredictor(ft, HammerSingleSided, 4, fliptable.ExtrapNone, nil); !errors.Is(err, ErrModeFliptableMismatch) {
		t.Errorf("err = %v, want ErrModeFliptableMismatch", err)
	}
}

func TestFliptablePredictorDoubleSidedTrigger(t *testing.T) {
	ft := buildDoubleSidedFliptable(t)
	pred, err := NewFliptablePredictor(ft, HammerDoubleSided, 4, fliptable.ExtrapNone, nil)
	if err != nil {
		t.Fatalf("NewFliptablePredictor: %v", err)
	}

	lower := ramses.DRAMAddr{Bank: 3, Row: 99}
	upper := ramses.DRAMAddr{Bank: 3, Row: 101}
	var reqs [8]Req

	for i := 0; i < 4; i++ {
		if n := pred.LogOp(lower, reqs[:]); n != 0 {
			t.Fatalf("LogOp(lower) call %d returned %d requests, want 0 (flanking row not yet hammered)", i, n)
		}
	}

	var n int
	for i := 0; i < 3; i++ {
		if n = pred.LogOp(upper, reqs[:]); n != 0 {
			t.Fatalf("LogOp(upper) call %d returned %d requests, want 0", i, n)
		}
	}
	n = pred.LogOp(upper, reqs[:])
	if n != 1 {
		t.Fatalf("final LogOp(upper) returned %d requests, want 1", n)
	}

	req := reqs[0]
	if req.Type != ReqBitflip {
		t.Errorf("Type = %v, want ReqBitflip", req.Type)
	}
	if req.Addr != lower {
		t.Errorf("Addr = %+v, want %+v (the lower triggering row)", req.Addr, lower)
	}
	if req.Arg.CellOff != 102 {
		t.Errorf("CellOff = %d, want 102", req.Arg.CellOff)
	}
}

func TestFliptablePredictorBelowThresholdEmitsNothing(t *testing.T) {
	ft := buildDoubleSidedFliptable(t)
	pred, err := NewFliptablePredictor(ft, HammerDoubleSided, 4, fliptable.ExtrapNone, nil)
	if err != nil {
		t.Fatalf("NewFliptablePredictor: %v", err)
	}

	lower := ramses.DRAMAddr{Bank: 3, Row: 99}
	upper := ramses.DRAMAddr{Bank: 3, Row: 101}
	var reqs [8]Req

	for i := 0; i < 4; i++ {
		pred.LogOp(lower, reqs[:])
	}
	for i := 0; i < 3; i++ {
		if n := pred.LogOp(upper, reqs[:]); n != 0 {
			t.Fatalf("LogOp(upper) call %d returned %d requests, want 0 below threshold", i, n)
		}
	}
}

func TestFliptablePredictorAdvanceTimeIsANoOpReport(t *testing.T) {
	ft := buildDoubleSidedFliptable(t)
	pred, err := NewFliptablePredictor(ft, HammerDoubleSided, 4, fliptable.ExtrapNone, nil)
	if err != nil {
		t.Fatalf("NewFliptablePredictor: %v", err)
	}
	var reqs [4]Req
	if n := pred.AdvanceTime(int64(refreshIntervalUs)*1000, reqs[:]); n != 0 {
		t.Errorf("AdvanceTime returned %d, want 0", n)
	}
}
