package mmu

import "testing"

func TestIndexExtraction(t *testing.T) {
	const va = uintptr(0x40200000) // kernel base + one 2MiB block
	if got := l0Index(va); got != 0 {
		t.Fatalf("l0Index: got %d want 0", got)
	}
	if got := l1Index(va); got != 1 {
		t.Fatalf("l1Index: got %d want 1", got)
	}
	if got := l2Index(va); got != 1 {
		t.Fatalf("l2Index: got %d want 1", got)
	}
}

func TestMapRangeRejectsUnalignedBase(t *testing.T) {
	var l2 Table
	if err := l2.MapRange(0x40000001, blockSize, AttrNormalExec); err == nil {
		t.Fatal("expected error for unaligned base")
	}
}

func TestMapRangeRejectsUnalignedSize(t *testing.T) {
	var l2 Table
	if err := l2.MapRange(0x40000000, blockSize-1, AttrNormalExec); err == nil {
		t.Fatal("expected error for unaligned size")
	}
}

func TestMapRangeSetsValidAndAddressBits(t *testing.T) {
	var l2 Table
	base := uintptr(0x40000000)
	if err := l2.MapRange(base, blockSize, AttrNormalExec); err != nil {
		t.Fatalf("MapRange: %v", err)
	}
	idx := l2Index(base)
	desc := l2.entries[idx]

	if desc&descValid == 0 {
		t.Fatal("expected valid bit set")
	}
	if desc&descTable != 0 {
		t.Fatal("expected table bit clear for a block descriptor")
	}
	if desc&(uxnBit|pxnBit) != 0 {
		t.Fatal("executable mapping must not carry UXN/PXN")
	}
	if got := desc &^ 0xFFF; got != uint64(base) {
		t.Fatalf("expected output address bits to equal 0x%x, got 0x%x", base, got)
	}
}

func TestMapRangeDeviceIsNeverExecutable(t *testing.T) {
	var l2 Table
	base := uintptr(0x09000000) &^ (blockSize - 1)
	if err := l2.MapRange(base, blockSize, AttrDeviceRW); err != nil {
		t.Fatalf("MapRange: %v", err)
	}
	desc := l2.entries[l2Index(base)]
	if desc&uxnBit == 0 || desc&pxnBit == 0 {
		t.Fatal("device mapping must set UXN and PXN")
	}
}

func TestMapRangeIsIdempotent(t *testing.T) {
	var l2 Table
	base := uintptr(0x40000000)
	if err := l2.MapRange(base, blockSize, AttrNormalExec); err != nil {
		t.Fatalf("MapRange (1st): %v", err)
	}
	first := l2.entries[l2Index(base)]
	if err := l2.MapRange(base, blockSize, AttrNormalExec); err != nil {
		t.Fatalf("MapRange (2nd): %v", err)
	}
	second := l2.entries[l2Index(base)]
	if first != second {
		t.Fatalf("re-mapping the same range produced a different descriptor: 0x%x vs 0x%x", first, second)
	}
}

func TestMapRangeCoversMultipleBlocks(t *testing.T) {
	var l2 Table
	base := uintptr(0x40000000)
	size := uintptr(4 * blockSize)
	if err := l2.MapRange(base, size, AttrNormalExec); err != nil {
		t.Fatalf("MapRange: %v", err)
	}
	for i := uintptr(0); i < 4; i++ {
		idx := l2Index(base + i*blockSize)
		if l2.entries[idx]&descValid == 0 {
			t.Fatalf("block %d not mapped", i)
		}
	}
}

func TestInstallWiresL0AndL1Tables(t *testing.T) {
	var ts TableSet
	target := ts.Install(0x40000000)
	if target != &ts.L2 {
		t.Fatal("expected Install to return the L2 table")
	}
	if ts.L0.entries[l0Index(0x40000000)]&descValid == 0 {
		t.Fatal("expected L0 entry to be installed")
	}
	if ts.L1.entries[l1Index(0x40000000)]&descValid == 0 {
		t.Fatal("expected L1 entry to be installed")
	}
}

func TestVerifyEnabledRequiresAllThreeBits(t *testing.T) {
	cases := []struct {
		name  string
		sctlr uint64
		want  bool
	}{
		{"all set", sctlrM | sctlrC | sctlrI, true},
		{"missing M", sctlrC | sctlrI, false},
		{"missing C", sctlrM | sctlrI, false},
		{"missing I", sctlrM | sctlrC, false},
		{"none set", 0, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := VerifyEnabled(c.sctlr); got != c.want {
				t.Fatalf("VerifyEnabled(0x%x) = %v, want %v", c.sctlr, got, c.want)
			}
		})
	}
}
