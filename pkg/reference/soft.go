package reference

import (
	"math"
	"runtime/metrics"
	"time"

	"github.com/pbnjay/memory"
)

// DefaultIdlePerMiB is how long a soft key may stay unused per MiB of free
// memory before its pin is released.
const DefaultIdlePerMiB = time.Second

// SoftPolicy decides when soft pins are released. A pin goes once the key
// has been idle longer than IdlePerMiB multiplied by the free memory in MiB,
// so pins are dropped faster as memory gets tighter.
type SoftPolicy struct {
	// Headroom returns the free memory in bytes. Defaults to DefaultHeadroom.
	Headroom func() uint64

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time

	// IdlePerMiB defaults to DefaultIdlePerMiB.
	IdlePerMiB time.Duration
}

// Now returns the policy clock reading.
func (p SoftPolicy) Now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now()
}

// MaxIdle returns the idle allowance for the current memory headroom.
func (p SoftPolicy) MaxIdle() time.Duration {
	per := p.IdlePerMiB
	if per <= 0 {
		per = DefaultIdlePerMiB
	}
	headroom := p.Headroom
	if headroom == nil {
		headroom = DefaultHeadroom
	}

	mib := headroom() >> 20
	if mib > uint64(math.MaxInt64/int64(per)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(mib) * per
}

// DefaultHeadroom returns the free system memory, capped by what is left
// under the Go memory limit when one is set.
func DefaultHeadroom() uint64 {
	free := memory.FreeMemory()
	if free == 0 {
		// Unsupported platform; assume half of physical memory is usable.
		free = memory.TotalMemory() / 2
	}

	samples := []metrics.Sample{
		{Name: "/gc/gomemlimit:bytes"},
		{Name: "/memory/classes/total:bytes"},
		{Name: "/memory/classes/heap/released:bytes"},
	}
	metrics.Read(samples)
	for _, s := range samples {
		if s.Value.Kind() != metrics.KindUint64 {
			return free
		}
	}

	limit := samples[0].Value.Uint64()
	if limit >= math.MaxInt64 {
		return free
	}
	used := samples[1].Value.Uint64() - samples[2].Value.Uint64()
	if used >= limit {
		return 0
	}
	return min(free, limit-used)
}
