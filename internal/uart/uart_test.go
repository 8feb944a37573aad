package uart

import (
	"testing"

	"github.com/grosheth/OdinOs-ARM64/internal/mmio"
)

func newTestDriver(t *testing.T) (*Driver, *mmio.FakeBus) {
	t.Helper()
	wl := mmio.NewWhitelist(mmio.Region{Name: "uart", Start: FallbackBase, Size: 0x1000})
	bus := mmio.NewFakeBus(wl)
	return New(bus, FallbackBase), bus
}

func TestInitProgramsBaudDivisorsAndEnablesUART(t *testing.T) {
	d, bus := newTestDriver(t)
	d.Init()

	if got := bus.Read32(FallbackBase + regIBRD); got != 13 {
		t.Fatalf("expected IBRD=13, got %d", got)
	}
	if got := bus.Read32(FallbackBase + regFBRD); got != 1 {
		t.Fatalf("expected FBRD=1, got %d", got)
	}
	cr := bus.Read32(FallbackBase + regCR)
	if cr&(crUARTEN|crTXE|crRXE) != crUARTEN|crTXE|crRXE {
		t.Fatalf("expected UARTEN|TXE|RXE set in CR, got 0x%x", cr)
	}
	lcrh := bus.Read32(FallbackBase + regLCRH)
	if lcrh&(lcrhWLEN8|lcrhFEN) != lcrhWLEN8|lcrhFEN {
		t.Fatalf("expected 8N1+FIFO in LCRH, got 0x%x", lcrh)
	}
	if got := bus.Read32(FallbackBase + regIMSC); got != 0 {
		t.Fatalf("expected IMSC=0 after Init (interrupts not yet enabled), got 0x%x", got)
	}
}

func TestPutcWritesDR(t *testing.T) {
	d, bus := newTestDriver(t)
	d.Init()
	d.Putc('A')
	if got := bus.Read32(FallbackBase + regDR); got != 'A' {
		t.Fatalf("expected DR='A', got %q", byte(got))
	}
}

func TestEnableRXInterruptUnmasksRXAndTimeout(t *testing.T) {
	d, bus := newTestDriver(t)
	d.Init()
	d.EnableRXInterrupt()
	imsc := bus.Read32(FallbackBase + regIMSC)
	if imsc&(1<<4) == 0 || imsc&(1<<6) == 0 {
		t.Fatalf("expected RXIM and RTIM set, got 0x%x", imsc)
	}
}

// fifoBus wraps FakeBus with a simulated PL011 RX FIFO, since FakeBus has
// no callback hook: FR reports RXFE clear while bytes remain, each DR read
// yields the next queued byte, and FR reports RXFE set once all are read.
type fifoBus struct {
	*mmio.FakeBus
	fifo []byte
}

func (f *fifoBus) Read32(addr uintptr) uint32 {
	switch addr {
	case FallbackBase + regFR:
		if len(f.fifo) == 0 {
			return frRXFE
		}
		return 0
	case FallbackBase + regDR:
		if len(f.fifo) == 0 {
			return 0
		}
		b := f.fifo[0]
		f.fifo = f.fifo[1:]
		return uint32(b)
	}
	return f.FakeBus.Read32(addr)
}

func newFIFODriver(t *testing.T, fifo []byte) *Driver {
	t.Helper()
	wl := mmio.NewWhitelist(mmio.Region{Name: "uart", Start: FallbackBase, Size: 0x1000})
	return New(&fifoBus{FakeBus: mmio.NewFakeBus(wl), fifo: fifo}, FallbackBase)
}

func TestHandleIRQDrainsFIFOIntoRing(t *testing.T) {
	// Simulate 3 bytes sitting in the hardware FIFO; one HandleIRQ call
	// must drain all of them into the ring.
	queued := []byte{'h', 'i', '!'}
	d := newFIFODriver(t, append([]byte(nil), queued...))
	d.Init()
	d.HandleIRQ()

	for _, want := range queued {
		got, ok := d.ReadByte()
		if !ok {
			t.Fatal("expected a queued byte")
		}
		if got != want {
			t.Fatalf("got %q want %q", got, want)
		}
	}
}

func TestHandleIRQClearsICR(t *testing.T) {
	d, bus := newTestDriver(t)
	d.Init()
	d.EnableRXInterrupt()

	bus.Write32(FallbackBase+regFR, 0)
	bus.Write32(FallbackBase+regDR, 'z')
	bus.Write32(FallbackBase+regFR, frRXFE)
	d.HandleIRQ()

	icr := bus.Read32(FallbackBase + regICR)
	if icr&(1<<4) == 0 || icr&(1<<6) == 0 {
		t.Fatalf("expected RXIM and RTIM cleared in ICR after HandleIRQ, got 0x%x", icr)
	}
}

func TestPendingReflectsRingLength(t *testing.T) {
	d := newFIFODriver(t, []byte{'x'})
	d.Init()
	d.HandleIRQ()

	if d.Pending() != 1 {
		t.Fatalf("expected Pending()=1, got %d", d.Pending())
	}
}

func TestPutsTruncatesAtMaxLine(t *testing.T) {
	d, bus := newTestDriver(t)
	d.Init()

	long := make([]byte, MaxLine+100)
	for i := range long {
		long[i] = 'x'
	}
	d.Puts(string(long))
	if got := bus.Read32(FallbackBase + regDR); got != 'x' {
		t.Fatalf("expected last transmitted byte to be 'x', got %q", byte(got))
	}
	// Puts must not panic or hang on an oversized string; reaching here
	// with the FakeBus's poll conditions never blocking confirms it
	// completed within MaxLine iterations.
}
