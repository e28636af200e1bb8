package ramses

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// LoadErr is a bitset of per-line errors accumulated while parsing a
// textual memory system description, so a caller can tell which
// directives were rejected without aborting the parse.
type LoadErr uint

const (
	ErrController LoadErr = 1 << iota
	ErrRoute
	ErrRemap
	ErrRouteOpts
	ErrUnknown
	ErrCntrlOpts
)

// MemorySystem composes a Router, Mapper, and Remapper plus the geometry
// and controller options needed to parameterise them, and exposes the
// end-to-end physaddr<->DRAMAddr resolution pipeline.
type MemorySystem struct {
	Router   Router
	Mapper   Mapper
	Remap    Remapper
	Geometry GeomFlags
}

// Resolve runs the full route -> map -> remap pipeline.
func (s *MemorySystem) Resolve(addr PhysAddr) DRAMAddr {
	mem := s.Router.Route(addr)
	dram := s.Mapper.Map(mem, s.Geometry)
	return s.Remap.Remap(dram)
}

// ResolveReverse runs the inverse pipeline: remap_reverse -> map_reverse ->
// route_reverse.
func (s *MemorySystem) ResolveReverse(addr DRAMAddr) PhysAddr {
	dram := s.Remap.RemapReverse(addr)
	mem := s.Mapper.MapReverse(dram, s.Geometry)
	return s.Router.RouteReverse(mem)
}

// LoadString parses a textual memory system description: newline-delimited
// "key value" records, '#'-prefixed comments, blank lines ignored. It
// always returns a *MemorySystem reflecting whatever directives it could
// apply, and a LoadErr bitset OR-ing every rejected directive's error
// flag — mirroring ramses_memsys_load_str's "keep going, accumulate
// errors" behavior. onError, when non-nil, receives a human-readable
// message for every rejected line (matching the C original's optional
// FILE *err stream), e.g. for logging via pkg/hammerlog at Warn level.
func LoadString(s string, onError func(msg string)) (*MemorySystem, LoadErr) {
	sys := &MemorySystem{}
	var errs LoadErr

	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimRight(line, "\r")
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cmd := fields[0]
		arg := ""
		if len(fields) > 1 {
			arg = fields[1]
		}

		if e := handleLine(cmd, arg, sys); e != 0 {
			errs |= e
			if onError != nil {
				onError(lineErrMessage(e, cmd, arg))
			}
		}
	}

	return sys, errs
}

func lineErrMessage(e LoadErr, cmd, arg string) string {
	switch e {
	case ErrController:
		return fmt.Sprintf("controller error: `%s'", arg)
	case ErrRoute:
		return fmt.Sprintf("route error: `%s'", arg)
	case ErrRemap:
		return fmt.Sprintf("remap error: `%s'", arg)
	case ErrRouteOpts:
		return fmt.Sprintf("route options error: `%s'", arg)
	case ErrCntrlOpts:
		return fmt.Sprintf("controller options error: `%s'", arg)
	default:
		return fmt.Sprintf("unknown command: `%s'", cmd)
	}
}

func handleLine(cmd, arg string, sys *MemorySystem) LoadErr {
	switch cmd {
	case "cntrl":
		return handleController(arg, sys)
	case "route":
		return handleRoute(arg, sys)
	case "remap":
		return handleRemap(arg, sys)
	case "route_opts":
		return handleRouteOpts(arg, sys)
	case "cntrl_opts":
		return handleCntrlOpts(arg, sys)
	case "chan":
		sys.Geometry |= GeomChanSelect
		return 0
	case "dimm":
		sys.Geometry |= GeomDimmSelect
		return 0
	case "rank":
		sys.Geometry |= GeomRankSelect
		return 0
	default:
		return ErrUnknown
	}
}

func handleController(s string, sys *MemorySystem) LoadErr {
	switch s {
	case "naive_ddr3":
		sys.Mapper = NaiveDDR3Mapper{}
	case "naive_ddr4":
		sys.Mapper = NaiveDDR4Mapper{}
	case "intel_sandy":
		sys.Mapper = IntelSandyMapper{}
	case "intel_ivy", "intel_haswell":
		sys.Mapper = IntelIvyHaswellMapper{}
	default:
		return ErrController
	}
	return 0
}

func handleRoute(s string, sys *MemorySystem) LoadErr {
	switch s {
	case "passthru":
		sys.Router = PassthruRouter{}
	case "x86_generic":
		sys.Router = X86GenericRouter{}
	default:
		return ErrRoute
	}
	return 0
}

func handleRemap(s string, sys *MemorySystem) LoadErr {
	switch s {
	case "none":
		sys.Remap = NoneRemap{}
	case "r3x0":
		sys.Remap = R3X0Remap{}
	case "r3x21":
		sys.Remap = R3X21Remap{}
	case "r3x210":
		sys.Remap = R3X210Remap{}
	default:
		return ErrRemap
	}
	return 0
}

// handleRouteOpts parses "flags,pci_start,top_of_memory" for the
// x86_generic router; it is the only router kind with options.
func handleRouteOpts(s string, sys *MemorySystem) LoadErr {
	r, ok := sys.Router.(X86GenericRouter)
	if !ok {
		return ErrRouteOpts
	}
	parts := strings.SplitN(s, ",", 3)
	if len(parts) != 3 {
		return ErrRouteOpts
	}
	flags, err1 := strconv.ParseUint(parts[0], 10, 32)
	pciStart, err2 := strconv.ParseUint(parts[1], 10, 64)
	topOfMem, err3 := strconv.ParseUint(parts[2], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return ErrRouteOpts
	}
	r.Opts = X86GenericOpts{
		Remap:    flags&1 != 0,
		IntelME:  flags&2 != 0,
		PCIStart: PhysAddr(pciStart),
		TopOfMem: PhysAddr(topOfMem),
	}
	sys.Router = r
	return 0
}

// handleCntrlOpts parses controller-specific options; only the two Intel
// mappers currently have any ("rank_mirror").
func handleCntrlOpts(s string, sys *MemorySystem) LoadErr {
	if s != "rank_mirror" {
		return ErrCntrlOpts
	}
	switch m := sys.Mapper.(type) {
	case IntelSandyMapper:
		m.RankMirror = true
		sys.Mapper = m
	case IntelIvyHaswellMapper:
		m.RankMirror = true
		sys.Mapper = m
	default:
		return ErrCntrlOpts
	}
	return 0
}

// LoadFile parses a textual memory system description streamed from r,
// the same grammar LoadString accepts but without buffering the whole
// input into one string first — the right choice for descriptors read
// directly off disk rather than embedded in a config file.
func LoadFile(r io.Reader, onError func(msg string)) (*MemorySystem, LoadErr) {
	sys := &MemorySystem{}
	var errs LoadErr

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		cmd := fields[0]
		arg := ""
		if len(fields) > 1 {
			arg = fields[1]
		}
		if e := handleLine(cmd, arg, sys); e != 0 {
			errs |= e
			if onError != nil {
				onError(lineErrMessage(e, cmd, arg))
			}
		}
	}
	return sys, errs
}
