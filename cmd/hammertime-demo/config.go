package main

import (
	"fmt"
	"os"

	"github.com/vusec/hammertime-go/pkg/fliptable"
	"github.com/vusec/hammertime-go/pkg/hamconfig"
	"github.com/vusec/hammertime-go/pkg/hammerlog"
	"github.com/vusec/hammertime-go/pkg/hammetrics"
	"github.com/vusec/hammertime-go/pkg/predictor"
	"github.com/vusec/hammertime-go/pkg/ramses"
)

// loadFliptable opens and memory-maps the fliptable named in the config.
// The backing descriptor is closed immediately; fliptable.Load keeps its
// own mapping independent of it.
func loadFliptable(path string) (*fliptable.FlipTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening fliptable: %w", err)
	}
	defer f.Close()
	ft, err := fliptable.Load(f)
	if err != nil {
		return nil, fmt.Errorf("loading fliptable: %w", err)
	}
	return ft, nil
}

// loadMemsys parses the memory system descriptor named in the config,
// logging (but not failing on) individual rejected directives the same
// way ramses_memsys_load_str tolerates them.
func loadMemsys(path string, log *hammerlog.Logger) (*ramses.MemorySystem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening memsys descriptor: %w", err)
	}
	defer f.Close()

	msys, errs := ramses.LoadFile(f, func(msg string) {
		log.Warn("memsys descriptor line rejected", "msg", msg)
	})
	if errs != 0 {
		log.Warn("memsys descriptor had rejected directives", "errmask", uint(errs))
	}
	return msys, nil
}

func hammerMode(mode hamconfig.PredictorMode) predictor.HammerMode {
	if mode == hamconfig.ModeDoubleSided {
		return predictor.HammerDoubleSided
	}
	return predictor.HammerSingleSided
}

func extrapMode(name hamconfig.ExtrapName) fliptable.ExtrapMode {
	switch name {
	case hamconfig.ExtrapPerBank:
		return fliptable.ExtrapPerBank
	case hamconfig.ExtrapPerBankTrunc:
		return fliptable.ExtrapPerBankTrunc
	case hamconfig.ExtrapPerBankFit:
		return fliptable.ExtrapPerBankFit
	default:
		return fliptable.ExtrapNone
	}
}

// buildPredictor constructs the fliptable predictor the config describes,
// wired into m for observability.
func buildPredictor(cfg *hamconfig.Config, ft *fliptable.FlipTable, m *hammetrics.Metrics) (*predictor.FliptablePredictor, error) {
	mode := hammerMode(cfg.Predictor.Mode)
	pred, err := predictor.NewFliptablePredictor(ft, mode, uint64(cfg.Predictor.Threshold), extrapMode(cfg.Predictor.Extrapolation), m)
	if err != nil {
		return nil, fmt.Errorf("building predictor: %w", err)
	}
	return pred, nil
}
