package vectors

import "testing"

func TestDecodeECExtractsCorrectField(t *testing.T) {
	// ESR_EL1 bits [31:26] carry the EC; construct a synthetic value with
	// EC = SVC64 (0x15) and an arbitrary ISS.
	esr := uint64(ECSVC64) << 26 | 0x1234
	if got := DecodeEC(esr); got != ECSVC64 {
		t.Fatalf("DecodeEC: got 0x%x want 0x%x", got, ECSVC64)
	}
	if got := ISS(esr); got != 0x1234 {
		t.Fatalf("ISS: got 0x%x want 0x1234", got)
	}
}

func TestECNameFallsBackForUnknownClass(t *testing.T) {
	ec := EC(0x3F)
	if name := ec.Name(); name != "EC=0x3f" {
		t.Fatalf("unexpected fallback name: %q", name)
	}
}

func TestECNameForKnownClasses(t *testing.T) {
	if ECBRK64.Name() != "BRK (AArch64)" {
		t.Fatalf("unexpected name for BRK64: %q", ECBRK64.Name())
	}
}

func TestBuildFatalReportDecodesFrame(t *testing.T) {
	frame := Frame{
		ELR: 0x40001000,
		FAR: 0x0,
		ESR: uint64(ECDataAbortSameEL)<<26 | 0x50,
	}
	r := BuildFatalReport(SourceCurrentSPELx, KindSync, frame)
	if r.EC != ECDataAbortSameEL {
		t.Fatalf("expected EC data abort same EL, got %v", r.EC)
	}
	if r.ISSVal != 0x50 {
		t.Fatalf("expected ISS 0x50, got 0x%x", r.ISSVal)
	}
	if r.ELR != frame.ELR {
		t.Fatalf("expected ELR to be carried through, got 0x%x", r.ELR)
	}
}

func TestFatalReportFormatIsOneLine(t *testing.T) {
	r := FatalReport{
		Source: SourceCurrentSPELx,
		Kind:   KindSync,
		EC:     ECDataAbortSameEL,
		ISSVal: 0x50,
		ELR:    0x40001000,
		FAR:    0x40002000,
	}
	msg := r.Format()
	if msg == "" {
		t.Fatal("expected non-empty banner")
	}
	for _, c := range msg {
		if c == '\n' {
			t.Fatal("expected single-line banner")
		}
	}
}

func TestSourceAndKindStringers(t *testing.T) {
	if SourceLowerEL64.String() != "lower EL, AArch64" {
		t.Fatalf("unexpected Source string: %q", SourceLowerEL64.String())
	}
	if KindIRQ.String() != "IRQ" {
		t.Fatalf("unexpected Kind string: %q", KindIRQ.String())
	}
}
