// Package mmio provides whitelist-checked, barrier-wrapped memory-mapped
// I/O access behind a small Bus interface, so device drivers never touch
// raw pointers directly and can be exercised on a development host through
// FakeBus instead of real hardware.
package mmio

import (
	"sync/atomic"

	"github.com/grosheth/OdinOs-ARM64/internal/klog"
)

// Bus is the capability every device driver in this kernel is built
// against. The real, hardware-backed implementation is PhysBus (arm64
// only); FakeBus backs the host tests of the packages built on Bus.
type Bus interface {
	Read8(addr uintptr) uint8
	Read32(addr uintptr) uint32
	Read64(addr uintptr) uint64
	Write8(addr uintptr, v uint8)
	Write32(addr uintptr, v uint32)
	Write64(addr uintptr, v uint64)
}

// Region is one entry of the compile-time MMIO whitelist: a named,
// non-overlapping [Start, Start+Size) range.
type Region struct {
	Name  string
	Start uintptr
	Size  uintptr
}

// End returns the exclusive end of the region.
func (r Region) End() uintptr { return r.Start + r.Size }

// contains reports whether [addr, addr+width) lies wholly inside r.
func (r Region) contains(addr uintptr, width uintptr) bool {
	if addr < r.Start {
		return false
	}
	end := addr + width
	if end < addr { // overflow
		return false
	}
	return end <= r.End()
}

// KernelRegionStart and KernelRegionEnd bound the forbidden kernel image
// range: no MMIO access may ever land inside it (§3, §8).
const (
	KernelRegionStart uintptr = 0x40000000
	KernelRegionEnd   uintptr = 0x48000000
)

// Whitelist is an ordered, non-overlapping set of MMIO regions plus the
// single forbidden kernel range. It is safe for concurrent read access
// once built; Register is intended to be called only during boot, before
// interrupts are enabled.
type Whitelist struct {
	regions  []Region
	rejected atomic.Uint64
}

// NewWhitelist builds a Whitelist from the given regions. It does not
// validate non-overlap; callers own that invariant (the regions here come
// from compile-time constants and boot-time FDT discovery, not untrusted
// input).
func NewWhitelist(regions ...Region) *Whitelist {
	w := &Whitelist{regions: append([]Region(nil), regions...)}
	return w
}

// Register adds a region discovered after boot (e.g. a GIC window found
// via the FDT). It must not be called once interrupts are live.
func (w *Whitelist) Register(r Region) {
	w.regions = append(w.regions, r)
}

// Allowed reports whether an access of the given width at addr is
// permitted: not inside the forbidden kernel range, and wholly contained
// in some whitelisted region.
func (w *Whitelist) Allowed(addr uintptr, width uintptr) bool {
	if addr < KernelRegionEnd && addr+width > KernelRegionStart {
		return false
	}
	for _, r := range w.regions {
		if r.contains(addr, width) {
			return true
		}
	}
	return false
}

// RecordRejected counts a rejected access, for diagnostics.
func (w *Whitelist) RecordRejected() { w.rejected.Add(1) }

// logRejected records a rejected access to the kernel log, shared by
// every Bus implementation so a whitelist violation is always visible
// regardless of which Bus caught it.
func logRejected(op string, addr uintptr, width uintptr) {
	klog.Printf("mmio: rejected %s at 0x%x width=%d\n", op, addr, width)
}

// Rejected returns the number of accesses rejected by this whitelist so far.
func (w *Whitelist) Rejected() uint64 { return w.rejected.Load() }

// Regions returns a copy of the currently whitelisted regions, in
// registration order.
func (w *Whitelist) Regions() []Region {
	return append([]Region(nil), w.regions...)
}

// Sentinel values returned for rejected reads, per §4.1/§7.
const (
	Sentinel8  uint8  = 0xFF
	Sentinel32 uint32 = 0xFFFFFFFF
	Sentinel64 uint64 = 0xFFFFFFFFFFFFFFFF
)
