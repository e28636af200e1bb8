// Package flowloop is the consumer side of the core pipeline: it reads
// decoded records off a probe.Ring, drives a predictor.Predictor with
// them, and for every emitted bitflip request resolves the target
// address and applies it via pkg/memfile. Ported from the reference
// implementation's glue.c, which calls this pairing "the glue" between
// a probe and a predictor.
package flowloop

import (
	"github.com/vusec/hammertime-go/pkg/hammerlog"
	"github.com/vusec/hammertime-go/pkg/hammetrics"
	"github.com/vusec/hammertime-go/pkg/memfile"
	"github.com/vusec/hammertime-go/pkg/predictor"
	"github.com/vusec/hammertime-go/pkg/probe"
	"github.com/vusec/hammertime-go/pkg/ramses"
	"github.com/vusec/hammertime-go/pkg/vtlb"
)

// reqBufSize caps how many PredictorReq entries a single LogOp/
// AdvanceTime call is serviced for per invocation, mirroring glue.c's
// MAXREQS. A predictor reporting more than this drops or re-queues the
// remainder per its own policy (see predictor.Predictor's doc comment).
const reqBufSize = 128

// PmemConfig configures RunPmemLoop.
type PmemConfig struct {
	Ring    *probe.Ring
	Pred    predictor.Predictor
	Msys    *ramses.MemorySystem
	Fd      int // writable descriptor over physical memory, e.g. /dev/mem
	Log     *hammerlog.Logger
	Metrics *hammetrics.Metrics
}

// RunPmemLoop drives the physical-memory flip loop: it reads MemOp/Time
// records from cfg.Ring until the ring reports finished, translating
// each MemOp's physical address to a DRAMAddr and feeding it (or elapsed
// time) to cfg.Pred, then applying any emitted bitflip requests directly
// against cfg.Fd by resolving DRAMAddr back to a physical byte offset.
// It returns once the ring finishes; it does not own the ring.
func RunPmemLoop(cfg PmemConfig) {
	log := cfg.Log
	if log == nil {
		log = hammerlog.Nop()
	}

	var cur uint64
	var lastT int64
	var reqs [reqBufSize]predictor.Req

	for {
		head, end := cfg.Ring.ReadHead(cur)
		if end {
			return
		}
		for cur < head {
			next, rec := cfg.Ring.Decode(cur)
			cur = next
			if rec.IsTime {
				delta := normalizeTime(rec.Time, &lastT)
				n := cfg.Pred.AdvanceTime(delta, reqs[:])
				pmemApplyReqs(cfg, reqs[:min(n, reqBufSize)], log)
			} else {
				dram := cfg.Msys.Resolve(ramses.PhysAddr(rec.MemOp.Phys))
				n := cfg.Pred.LogOp(dram, reqs[:])
				pmemApplyReqs(cfg, reqs[:min(n, reqBufSize)], log)
			}
		}
	}
}

func pmemApplyReqs(cfg PmemConfig, reqs []predictor.Req, log *hammerlog.Logger) {
	for _, req := range reqs {
		if req.Type != predictor.ReqBitflip {
			continue
		}
		tpa := cfg.Msys.ResolveReverse(req.Addr)
		offset := int64(tpa) + int64(req.Arg.CellOff)
		if err := memfile.FlipBits(cfg.Fd, offset, req.Arg.Pullup, req.Arg.Pulldown); err != nil {
			log.Warn("flip failed", "offset", offset, "err", err.Error())
			cfg.Metrics.IncFlipErrorsTotal()
			continue
		}
		cfg.Metrics.IncFlipsTotal()
	}
}

// VmemConfig configures RunVmemLoop.
type VmemConfig struct {
	Ring    *probe.Ring
	Pred    predictor.Predictor
	Msys    *ramses.MemorySystem
	Pid     int
	Log     *hammerlog.Logger
	Metrics *hammetrics.Metrics
}

// RunVmemLoop is RunPmemLoop's per-process counterpart: it requires
// cfg.Ring to carry virtual addresses (probe.FlagVirtAddr) so it can
// maintain a reverse physical-to-virtual page table from every observed
// MemOp, and resolves bitflip requests through that table before writing
// through a freshly-opened /proc/<pid>/mem for each flip.
func RunVmemLoop(cfg VmemConfig) {
	log := cfg.Log
	if log == nil {
		log = hammerlog.Nop()
	}
	if cfg.Ring.Flags()&probe.FlagVirtAddr == 0 {
		log.Error("vmem flip loop requires a virtual-address-carrying ring")
		return
	}

	rev := newRevVTLB()

	var cur uint64
	var lastT int64
	var reqs [reqBufSize]predictor.Req

	for {
		head, end := cfg.Ring.ReadHead(cur)
		if end {
			return
		}
		for cur < head {
			next, rec := cfg.Ring.Decode(cur)
			cur = next
			if rec.IsTime {
				delta := normalizeTime(rec.Time, &lastT)
				n := cfg.Pred.AdvanceTime(delta, reqs[:])
				vmemApplyReqs(cfg, rev, reqs[:min(n, reqBufSize)], log)
			} else {
				k := rec.MemOp.Phys >> 12
				_, handle := rev.Search(k)
				rev.Insert(k, rec.MemOp.Virt>>12, handle)

				dram := cfg.Msys.Resolve(ramses.PhysAddr(rec.MemOp.Phys))
				n := cfg.Pred.LogOp(dram, reqs[:])
				vmemApplyReqs(cfg, rev, reqs[:min(n, reqBufSize)], log)
			}
		}
	}
}

func vmemApplyReqs(cfg VmemConfig, rev *vtlb.HashBucket, reqs []predictor.Req, log *hammerlog.Logger) {
	for _, req := range reqs {
		if req.Type != predictor.ReqBitflip {
			continue
		}
		tpa := cfg.Msys.ResolveReverse(req.Addr)
		present, handle := rev.Search(uint64(tpa) >> 12)
		if !present {
			log.Warn("bitflip target's virtual address unknown", "phys", uint64(tpa))
			continue
		}
		vaddr := (rev.Get(handle) << 12) + (uint64(tpa) & 0xfff)
		offset := int64(vaddr) + int64(req.Arg.CellOff)

		f, err := memfile.OpenPidMem(cfg.Pid, true)
		if err != nil {
			log.Warn("opening target mem failed", "pid", cfg.Pid, "err", err.Error())
			cfg.Metrics.IncFlipErrorsTotal()
			continue
		}
		err = memfile.FlipBits(int(f.Fd()), offset, req.Arg.Pullup, req.Arg.Pulldown)
		f.Close()
		if err != nil {
			log.Warn("flip failed", "offset", offset, "err", err.Error())
			cfg.Metrics.IncFlipErrorsTotal()
			continue
		}
		cfg.Metrics.IncFlipsTotal()
	}
}

// normalizeTime converts a raw ring Time value into a nanosecond delta,
// tracking the last seen absolute timestamp the way glue.c's
// pmem_flip_loop/vmem_flip_loop do: a negative value is already a
// magnitude (negate it); a non-negative value is an absolute timestamp,
// and the delta is the difference from the previous one.
func normalizeTime(raw int64, lastT *int64) int64 {
	if raw < 0 {
		return -raw
	}
	delta := raw - *lastT
	*lastT = raw
	return delta
}

