// Package uart drives a PL011 UART: polled transmit and IRQ-driven
// receive into a lock-free SPSC ring that the shell's read loop drains.
package uart

import "github.com/grosheth/OdinOs-ARM64/internal/mmio"

// PL011 register offsets relative to the UART's MMIO base.
const (
	regDR   = 0x00
	regFR   = 0x18
	regIBRD = 0x24
	regFBRD = 0x28
	regLCRH = 0x2C
	regCR   = 0x30
	regIMSC = 0x38
	regICR  = 0x44
)

// FR (flag register) bits.
const (
	frBUSY = 1 << 3
	frRXFE = 1 << 4 // RX FIFO empty
)

// CR (control register) bits.
const (
	crUARTEN = 1 << 0
	crTXE    = 1 << 8
	crRXE    = 1 << 9
)

// LCRH bits: 8N1 with FIFOs enabled.
const (
	lcrhFEN  = 1 << 4
	lcrhWLEN8 = 3 << 5
)

// IMSC/ICR share the same bit numbering for the interrupts this driver
// uses: RX and RX-timeout.
const (
	imscRXIM = 1 << 4
	imscRTIM = 1 << 6
)

// FallbackBase is used when the FDT lookup fails to find a UART node:
// QEMU virt's PL011 is always mapped here regardless of what its DT node
// says, so a kernel that cannot parse the tree can still get a console.
const FallbackBase = 0x09000000

// MaxLine bounds a single Puts call. internal/shell caps its line buffer
// with its own constant of the same value.
const MaxLine = 4096

// Driver is a PL011 UART bound to an MMIO base through a Bus.
type Driver struct {
	bus  mmio.Bus
	base uintptr
	rx   ring
}

// New builds a Driver at base. Init must be called before use.
func New(bus mmio.Bus, base uintptr) *Driver {
	return &Driver{bus: bus, base: base}
}

func (d *Driver) rd32(off uintptr) uint32    { return d.bus.Read32(d.base + off) }
func (d *Driver) wr32(off uintptr, v uint32) { d.bus.Write32(d.base+off, v) }

// Init runs the PL011 bring-up sequence: disable, wait for any pending
// transmission to finish, disable line control while reprogramming the
// baud rate divisors, clear all pending interrupts, mask everything, then
// re-enable UART/TX/RX with 8N1 framing and FIFOs on.
//
// Baud divisors are fixed for 115200 8N1 against the UART's default
// 24MHz PL011 reference clock on QEMU virt: IBRD=13, FBRD=1.
func (d *Driver) Init() {
	d.wr32(regCR, 0)
	for d.rd32(regFR)&frBUSY != 0 {
	}
	d.wr32(regLCRH, 0)
	d.wr32(regICR, 0x7FF)
	d.wr32(regIBRD, 13)
	d.wr32(regFBRD, 1)
	d.wr32(regLCRH, lcrhWLEN8|lcrhFEN)
	d.wr32(regIMSC, 0)
	d.wr32(regCR, crUARTEN|crTXE|crRXE)
}

// Putc transmits a single byte, blocking (via polling) until the FIFO has
// room. There is no interrupt-driven TX path — TX completion is fast
// enough at 115200 baud that polling never stalls the shell noticeably.
func (d *Driver) Putc(b byte) {
	for d.rd32(regFR)&(1<<5) != 0 { // TXFF: transmit FIFO full
	}
	d.wr32(regDR, uint32(b))
}

// Puts transmits s, one byte at a time. Truncated to MaxLine bytes; s
// must not need a trailing NUL, matching Putc's semantics.
func (d *Driver) Puts(s string) {
	if len(s) > MaxLine {
		s = s[:MaxLine]
	}
	for i := 0; i < len(s); i++ {
		d.Putc(s[i])
	}
}

// EnableRXInterrupt unmasks the RX and RX-timeout interrupts, the only
// two this driver ever expects to take.
func (d *Driver) EnableRXInterrupt() {
	d.wr32(regIMSC, imscRXIM|imscRTIM)
}

// HandleIRQ drains every byte currently in the PL011's hardware RX FIFO
// into the ring buffer, silently dropping any byte that arrives once the
// ring is full, then clears the RX and RX-timeout interrupt conditions.
// RTIM is a level-sensitive, sticky condition: leaving it uncleared here
// would latch it pending forever once the FIFO next goes idle. Called
// from the IRQ dispatcher with interrupts masked.
func (d *Driver) HandleIRQ() {
	for d.rd32(regFR)&frRXFE == 0 {
		b := byte(d.rd32(regDR))
		d.rx.push(b)
	}
	d.wr32(regICR, imscRXIM|imscRTIM)
}

// ReadByte pops one byte from the RX ring, if any is queued.
func (d *Driver) ReadByte() (byte, bool) {
	return d.rx.pop()
}

// Pending reports how many bytes are queued in the RX ring.
func (d *Driver) Pending() int {
	return d.rx.len()
}
