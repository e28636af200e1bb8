package flowloop

import "github.com/vusec/hammertime-go/pkg/vtlb"

// revVTLBSize and revVTLBProbeLimit size the reverse physical-to-virtual
// page lookup the vmem flip loop maintains, mirroring glue.c's
// REVTLB_SIZE/MAXREQS constants (here just the table size; MAXREQS lives
// as reqBufSize in loop.go).
const (
	revVTLBSize       = 0x4000
	revVTLBProbeLimit = 256
)

// newRevVTLB builds the phys-page -> virt-page reverse lookup the vmem
// flip loop populates from every observed MemOp and consults when
// resolving a bitflip request's target address.
func newRevVTLB() *vtlb.HashBucket {
	return vtlb.NewHashBucket(revVTLBSize, vtlb.HashTwang6432, revVTLBProbeLimit)
}
