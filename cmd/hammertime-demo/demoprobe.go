package main

import (
	"math/rand"
	"time"

	"github.com/vusec/hammertime-go/pkg/probe"
)

// burstLen and burstInterval mirror dummy_probe.c's own BURSTLEN/
// USLEEPTIME constants, calibrated there to approximate rowhammer-like
// access throughput rather than anything representative
// of a single real workload.
const (
	burstLen        = 40000
	burstInterval   = 5 * time.Millisecond
	timeEveryBursts = 16
)

// runDemoProbe stands in for the perf-event probe hammertime-demo has no
// access to: it appends bursts of synthetic memory-operation records to
// ring, exactly as dummy_probe.c's genaddr does, so the rest of the
// pipeline (predictor, flip loop) has real traffic to exercise. It
// returns once stop is closed, calling ring.Finish() on the way out.
func runDemoProbe(ring *probe.Ring, stop <-chan struct{}) {
	defer ring.Finish()

	wakeups := 0
	ticker := time.NewTicker(burstInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		wakeups++
		for i := 0; i < burstLen; i++ {
			x := rand.Uint64()
			ring.AppendMemOp(x, ^x, probe.MemOpStats{})
		}
		if wakeups%timeEveryBursts == 0 {
			ring.AppendTimeDelta(int64(timeEveryBursts) * burstInterval.Nanoseconds())
		}
	}
}
