package predictor

import (
	"errors"
	"time"

	"github.com/vusec/hammertime-go/pkg/fliptable"
	"github.com/vusec/hammertime-go/pkg/hammetrics"
	"github.com/vusec/hammertime-go/pkg/ramses"
	"github.com/vusec/hammertime-go/pkg/vtlb"
)

// HammerMode selects which rowhammer pattern FliptablePredictor looks
// for: a single row hammered past threshold, or two rows flanking a
// victim both hammered past threshold.
type HammerMode int

const (
	HammerSingleSided HammerMode = iota
	HammerDoubleSided
)

// dist returns the inter-aggressor row distance a HammerMode implies: 0
// for single-sided (the row triggers against itself), 2 for
// double-sided.
func (m HammerMode) dist() int {
	if m == HammerDoubleSided {
		return 2
	}
	return 0
}

// ErrModeFliptableMismatch is returned by NewFliptablePredictor when the
// requested HammerMode's distance disagrees with the loaded fliptable's
// recorded profiling distance.
var ErrModeFliptableMismatch = errors.New("predictor: hammer mode distance disagrees with fliptable dist")

// refreshIntervalUs and refreshToleranceUs are the tally bucket's aging
// parameters: a DRAM refresh window (~64ms) plus slack for jitter
// between the producer's clock and the real refresh timer.
const (
	refreshIntervalUs  = 64_000
	refreshToleranceUs = 2_000
	tallyBucketSize    = 512_000
)

// FliptablePredictor counts memory accesses per DRAM row within a
// rolling refresh window and, once a row (or a flanking pair of rows)
// crosses a threshold, resolves the implied rowhammer pattern against a
// FlipTable to emit bitflip requests.
type FliptablePredictor struct {
	ft     *fliptable.FlipTable
	counts *vtlb.VTLB
	thresh uint64
	dist   int
	extrap fliptable.ExtrapMode
	m      *hammetrics.Metrics
}

// NewFliptablePredictor builds a FliptablePredictor over ft. mode must
// agree with ft.Dist (0 for single-sided, 2 for double-sided) or
// ErrModeFliptableMismatch is returned. m may be nil to disable metrics.
func NewFliptablePredictor(ft *fliptable.FlipTable, mode HammerMode, threshold uint64, extrap fliptable.ExtrapMode, m *hammetrics.Metrics) (*FliptablePredictor, error) {
	if uint32(mode.dist()) != ft.Dist {
		return nil, ErrModeFliptableMismatch
	}
	counts, err := vtlb.New(tallyBucketSize, 1,
		refreshIntervalUs*time.Microsecond,
		(refreshIntervalUs+refreshToleranceUs)*time.Microsecond,
		nil)
	if err != nil {
		return nil, err
	}
	return &FliptablePredictor{
		ft:     ft,
		counts: counts,
		thresh: threshold,
		dist:   mode.dist(),
		extrap: extrap,
		m:      m,
	}, nil
}

// AdvanceTime moves the tally bucket's clock forward; the VTLB aging
// mechanism expires stale per-row tallies, which is what makes counting
// "per refresh window" fall out naturally instead of needing an
// explicit window-reset step.
func (p *FliptablePredictor) AdvanceTime(deltaNanos int64, reqs []Req) int {
	p.counts.UpdateTimeDelta(deltaNanos)
	return 0
}

// LogOp records an access to addr (row-granular: addr.Col is ignored)
// and, once the row's tally crosses threshold, checks whether the
// flanking row at -dist or +dist has also crossed threshold. If so it
// zeros both tallies and emits the fliptable's recorded flips for the
// lower of the two rows.
func (p *FliptablePredictor) LogOp(addr ramses.DRAMAddr, reqs []Req) int {
	p.m.IncPredictorLogOps()

	addr.Col = 0
	key := addr.Key()

	tally := p.counts.Search(key)
	if tally == ramses.BadPhysAddr {
		p.counts.Update(key, 1)
		return 0
	}
	tally++
	p.counts.Update(key, tally)

	if uint64(tally) < p.thresh {
		return 0
	}

	lower := ramses.AddRows(addr, -p.dist)
	lowerKey := lower.Key()
	if t := p.counts.Search(lowerKey); t != ramses.BadPhysAddr && uint64(t) >= p.thresh {
		p.counts.Update(lowerKey, 0)
		p.counts.Update(key, 0)
		p.m.IncPredictorDetections()
		return p.lookup(lower, reqs)
	}

	upper := ramses.AddRows(addr, p.dist)
	upperKey := upper.Key()
	if t := p.counts.Search(upperKey); t != ramses.BadPhysAddr && uint64(t) >= p.thresh {
		p.counts.Update(upperKey, 0)
		p.counts.Update(key, 0)
		p.m.IncPredictorDetections()
		return p.lookup(addr, reqs)
	}

	return 0
}

// lookup resolves center (the lower of the triggering row pair) through
// the fliptable, writing up to len(reqs) Bitflip requests.
func (p *FliptablePredictor) lookup(center ramses.DRAMAddr, reqs []Req) int {
	flips, ediff := p.ft.Lookup(center, p.extrap)
	n := len(flips)
	for i := 0; i < n && i < len(reqs); i++ {
		f := flips[i]
		reqs[i] = Req{
			Type: ReqBitflip,
			Tag:  0,
			Addr: ramses.Add(f.Location, ediff),
			Arg:  BitFlipArg{CellOff: f.CellByte, Pullup: f.Pullup, Pulldown: f.Pulldown},
		}
		p.m.IncPredictorFlips()
	}
	return n
}

// AnswerReq has nothing to answer: FliptablePredictor never emits a
// REQ_DATA request, so it never expects a reply.
func (p *FliptablePredictor) AnswerReq(reqTag uint32, arg any, reqs []Req) int {
	return 0
}

var _ Predictor = (*FliptablePredictor)(nil)
