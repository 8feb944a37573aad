// Package gic drives an ARM GICv2 distributor and CPU interface: the
// init sequence, per-line enable/disable, and the acknowledge/EOI
// protocol the IRQ dispatcher uses around every handler invocation.
package gic

import "github.com/grosheth/OdinOs-ARM64/internal/mmio"

// Distributor register offsets (GICD_*), relative to the distributor's
// MMIO base.
const (
	gicdCTLR       = 0x000
	gicdTYPER      = 0x004
	gicdISENABLER0 = 0x100
	gicdICENABLER0 = 0x180
	gicdICPENDR0   = 0x280
	gicdIPRIORITYR = 0x400
	gicdITARGETSR  = 0x800
	gicdICFGR      = 0xC00
)

// CPU interface register offsets (GICC_*), relative to the CPU
// interface's MMIO base.
const (
	gicdCTLROff   = 0x00
	gicdPMROff    = 0x04
	gicdBPROff    = 0x08
	gicdIAROff    = 0x0C
	gicdEOIROff   = 0x10
)

// SpuriousID is the interrupt ID GICC_IAR returns when there is nothing
// pending to acknowledge.
const SpuriousID = 1023

// defaultPriority is programmed into every SPI's IPRIORITYR byte during
// init; GICC_PMR is programmed to the same value so every enabled
// priority is unmasked.
const defaultPriority = 0xFF

// Controller drives one GICv2 instance over a Bus. DistBase and CPUBase
// are the two MMIO windows the FDT's interrupt-controller node reports.
type Controller struct {
	bus      mmio.Bus
	distBase uintptr
	cpuBase  uintptr
	numLines uint32
}

// New builds a Controller. It does not touch hardware; call Init to run
// the distributor/CPU-interface bring-up sequence.
func New(bus mmio.Bus, distBase, cpuBase uintptr) *Controller {
	return &Controller{bus: bus, distBase: distBase, cpuBase: cpuBase}
}

func (c *Controller) rd32(off uintptr) uint32       { return c.bus.Read32(c.distBase + off) }
func (c *Controller) wr32(off uintptr, v uint32)    { c.bus.Write32(c.distBase+off, v) }
func (c *Controller) crd32(off uintptr) uint32      { return c.bus.Read32(c.cpuBase + off) }
func (c *Controller) cwr32(off uintptr, v uint32)   { c.bus.Write32(c.cpuBase+off, v) }

// numLinesFromTYPER derives the number of implemented interrupt lines
// from GICD_TYPER's ITLinesNumber field: (N+1)*32, capped at 1020 per the
// GICv2 architecture (IDs 1020-1023 are reserved).
func numLinesFromTYPER(typer uint32) uint32 {
	n := (typer&0x1F + 1) * 32
	if n > 1020 {
		n = 1020
	}
	return n
}

// Init runs the distributor and CPU interface bring-up sequence: disable
// both, derive the line count from GICD_TYPER, disable and clear every
// SPI, set every SPI's priority to 0xFF, target every SPI at CPU0, and
// configure every SPI level-sensitive, then re-enable the distributor and
// CPU interface with GICC_PMR=0xFF and GICC_BPR=0.
func (c *Controller) Init() {
	c.wr32(gicdCTLR, 0)
	c.cwr32(gicdCTLROff, 0)

	c.numLines = numLinesFromTYPER(c.rd32(gicdTYPER))

	for id := uint32(32); id < c.numLines; id += 32 {
		reg := (id / 32) * 4
		c.wr32(gicdICENABLER0+uintptr(reg), 0xFFFFFFFF)
		c.wr32(gicdICPENDR0+uintptr(reg), 0xFFFFFFFF)
	}

	for id := uint32(32); id < c.numLines; id++ {
		byteOff := uintptr(id)
		c.setPriorityByte(byteOff, defaultPriority)
		c.setTargetByte(byteOff, 0x01) // CPU0
	}

	for id := uint32(32); id < c.numLines; id += 16 {
		reg := (id / 16) * 4
		c.wr32(gicdICFGR+uintptr(reg), 0) // level-sensitive, N-N model
	}

	c.wr32(gicdCTLR, 1)
	c.cwr32(gicdPMROff, defaultPriority)
	c.cwr32(gicdBPROff, 0)
	c.cwr32(gicdCTLROff, 1)
}

func (c *Controller) setPriorityByte(id uintptr, v uint8) {
	regOff := gicdIPRIORITYR + (id/4)*4
	shift := (id % 4) * 8
	cur := c.rd32(regOff)
	cur &^= 0xFF << shift
	cur |= uint32(v) << shift
	c.wr32(regOff, cur)
}

func (c *Controller) setTargetByte(id uintptr, v uint8) {
	regOff := gicdITARGETSR + (id/4)*4
	shift := (id % 4) * 8
	cur := c.rd32(regOff)
	cur &^= 0xFF << shift
	cur |= uint32(v) << shift
	c.wr32(regOff, cur)
}

// NumLines returns the line count Init derived from GICD_TYPER. Zero
// before Init runs.
func (c *Controller) NumLines() uint32 { return c.numLines }

// Enable unmasks a single SPI at the distributor.
func (c *Controller) Enable(id uint32) {
	reg := (id / 32) * 4
	bit := id % 32
	c.wr32(gicdISENABLER0+uintptr(reg), 1<<bit)
}

// Disable masks a single SPI at the distributor.
func (c *Controller) Disable(id uint32) {
	reg := (id / 32) * 4
	bit := id % 32
	c.wr32(gicdICENABLER0+uintptr(reg), 1<<bit)
}

// Acknowledge reads GICC_IAR, returning the interrupt ID currently being
// serviced (or SpuriousID if nothing is pending).
func (c *Controller) Acknowledge() uint32 {
	return c.crd32(gicdIAROff) & 0x3FF
}

// EOI writes the given interrupt ID back to GICC_EOIR, completing the
// acknowledge/EOI protocol for that interrupt.
func (c *Controller) EOI(id uint32) {
	c.cwr32(gicdEOIROff, id)
}

// CTLREnabled reports whether GICD_CTLR's group-0 enable bit is set, the
// invariant this kernel checks right after Init.
func (c *Controller) CTLREnabled() bool {
	return c.rd32(gicdCTLR)&1 != 0
}

// CPUCTLREnabled reports whether GICC_CTLR's enable bit is set.
func (c *Controller) CPUCTLREnabled() bool {
	return c.crd32(gicdCTLROff)&1 != 0
}

// PriorityMask returns the current GICC_PMR value.
func (c *Controller) PriorityMask() uint32 {
	return c.crd32(gicdPMROff)
}
