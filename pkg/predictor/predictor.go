// Package predictor models a predictor as a black box that observes memory
// operations and time advancing, and answers with requests for bitflips
// or memory contents: a rowhammer pattern detector, decoupled from
// whatever drives it.
package predictor

import "github.com/vusec/hammertime-go/pkg/ramses"

// ReqType distinguishes what a Predictor is asking its caller for.
type ReqType int

const (
	// ReqBitflip reports that a bitflip is predicted to have occurred.
	ReqBitflip ReqType = iota
	// ReqData requests the memory contents at a given number of cells;
	// no predictor in this package currently emits one, but callers
	// implementing their own Predictor are free to.
	ReqData
)

// BitFlipArg is the payload of a ReqBitflip request: which byte within
// the cell flipped and in which direction(s).
type BitFlipArg struct {
	CellOff  uint16
	Pullup   uint8
	Pulldown uint8
}

// Req is one request a Predictor method generated: a bitflip prediction
// or a data request, tagged so a caller can correlate a later AnswerReq
// call with the request it answers.
type Req struct {
	Type ReqType
	Tag  uint32
	Addr ramses.DRAMAddr
	Arg  BitFlipArg
}

// Predictor is the polymorphic capability set a rowhammer pattern
// detector exposes. Every method is total: it writes up to len(reqs)
// generated requests into reqs and returns the number actually generated,
// which may exceed len(reqs) if the predictor had more to report than
// room to report them in. A predictor that caches the remainder should
// return them on a later AdvanceTime(0) call; one that doesn't is free to
// drop them.
type Predictor interface {
	// AdvanceTime moves the predictor's internal clock forward by
	// deltaNanos nanoseconds.
	AdvanceTime(deltaNanos int64, reqs []Req) int
	// LogOp records a memory operation at addr.
	LogOp(addr ramses.DRAMAddr, reqs []Req) int
	// AnswerReq supplies arg as the answer to a previously emitted
	// request tagged reqTag.
	AnswerReq(reqTag uint32, arg any, reqs []Req) int
}
