package mmio

import (
	"bytes"
	"testing"

	"github.com/grosheth/OdinOs-ARM64/internal/klog"
)

func testWhitelist() *Whitelist {
	return NewWhitelist(
		Region{Name: "uart", Start: 0x09000000, Size: 0x1000},
		Region{Name: "gicd", Start: 0x08000000, Size: 0x10000},
		Region{Name: "gicc", Start: 0x08010000, Size: 0x10000},
	)
}

func TestAllowedInsideRegion(t *testing.T) {
	wl := testWhitelist()
	if !wl.Allowed(0x09000000, 4) {
		t.Fatal("expected uart base to be allowed")
	}
	if !wl.Allowed(0x09000ffc, 4) {
		t.Fatal("expected last word of uart region to be allowed")
	}
}

func TestRejectedPastRegionEnd(t *testing.T) {
	wl := testWhitelist()
	if wl.Allowed(0x09000ffd, 4) {
		t.Fatal("expected access straddling region end to be rejected")
	}
	if wl.Allowed(0x09001000, 4) {
		t.Fatal("expected access exactly at region end to be rejected")
	}
}

func TestRejectedInsideKernelRange(t *testing.T) {
	wl := testWhitelist()
	wl.Register(Region{Name: "overlap", Start: 0x40000000, Size: 0x8000000})
	if wl.Allowed(0x40000000, 4) {
		t.Fatal("expected kernel range start to be rejected even if whitelisted")
	}
	if wl.Allowed(0x47ffffff, 1) {
		t.Fatal("expected last byte of kernel range to be rejected")
	}
}

func TestRejectedOutsideAnyRegion(t *testing.T) {
	wl := testWhitelist()
	if wl.Allowed(0x50000000, 4) {
		t.Fatal("expected unmapped address to be rejected")
	}
}

func TestFakeBusRejectedReadReturnsSentinel(t *testing.T) {
	wl := testWhitelist()
	bus := NewFakeBus(wl)

	if got := bus.Read32(0x40000000); got != Sentinel32 {
		t.Fatalf("expected sentinel for kernel-range read, got 0x%x", got)
	}
	if wl.Rejected() != 1 {
		t.Fatalf("expected 1 rejection recorded, got %d", wl.Rejected())
	}
}

func TestFakeBusRejectedWriteIsDropped(t *testing.T) {
	wl := testWhitelist()
	bus := NewFakeBus(wl)

	bus.Write32(0x50000000, 0xdeadbeef)
	if bus.Writes() != 0 {
		t.Fatalf("expected rejected write to not be counted, got %d writes", bus.Writes())
	}
	if wl.Rejected() != 1 {
		t.Fatalf("expected 1 rejection recorded, got %d", wl.Rejected())
	}
}

func TestFakeBusRoundTrip(t *testing.T) {
	wl := testWhitelist()
	bus := NewFakeBus(wl)

	bus.Write32(0x09000004, 0x12345678)
	if got := bus.Read32(0x09000004); got != 0x12345678 {
		t.Fatalf("round trip mismatch: got 0x%x", got)
	}
	if bus.Reads() != 1 || bus.Writes() != 1 {
		t.Fatalf("expected 1 read and 1 write, got reads=%d writes=%d", bus.Reads(), bus.Writes())
	}
}

func TestFakeBus8And64RoundTrip(t *testing.T) {
	wl := testWhitelist()
	bus := NewFakeBus(wl)

	bus.Write8(0x09000000, 0xAB)
	if got := bus.Read8(0x09000000); got != 0xAB {
		t.Fatalf("Write8/Read8 mismatch: got 0x%x", got)
	}

	bus.Write64(0x08010000, 0x0102030405060708)
	if got := bus.Read64(0x08010000); got != 0x0102030405060708 {
		t.Fatalf("Write64/Read64 mismatch: got 0x%x", got)
	}
}

func TestFakeBusRejectedAccessIsLogged(t *testing.T) {
	var buf bytes.Buffer
	old := klog.Sink
	klog.Sink = &buf
	defer func() { klog.Sink = old }()

	wl := testWhitelist()
	bus := NewFakeBus(wl)
	bus.Read32(0x40000000)

	if !bytes.Contains(buf.Bytes(), []byte("rejected")) {
		t.Fatalf("expected rejected access to be logged, got %q", buf.String())
	}
}

func TestRegionsCopyIsIndependent(t *testing.T) {
	wl := testWhitelist()
	regions := wl.Regions()
	regions[0].Name = "mutated"
	if wl.Regions()[0].Name == "mutated" {
		t.Fatal("Regions() should return an independent copy")
	}
}
