package uart

import "testing"

func TestRingPushPopPreservesOrder(t *testing.T) {
	var r ring
	for _, b := range []byte("hello") {
		if !r.push(b) {
			t.Fatalf("push(%q) unexpectedly failed", b)
		}
	}
	for _, want := range []byte("hello") {
		got, ok := r.pop()
		if !ok {
			t.Fatal("expected a byte to be available")
		}
		if got != want {
			t.Fatalf("got %q want %q", got, want)
		}
	}
	if _, ok := r.pop(); ok {
		t.Fatal("expected ring to be empty")
	}
}

func TestRingCapacityBoundary(t *testing.T) {
	var r ring
	for i := 0; i < ringSize-1; i++ {
		if !r.push(byte(i)) {
			t.Fatalf("push %d: expected success (ring holds %d usable slots)", i, ringSize-1)
		}
	}
	if r.push(0xFF) {
		t.Fatal("expected the ring-size'th push to fail: one slot must stay empty")
	}
	if r.len() != ringSize-1 {
		t.Fatalf("expected len=%d, got %d", ringSize-1, r.len())
	}
}

func TestRingDropsOnOverrunRatherThanBlocking(t *testing.T) {
	var r ring
	for i := 0; i < ringSize-1; i++ {
		r.push(byte(i))
	}
	dropped := r.push(0xAA)
	if dropped {
		t.Fatal("expected overrun push to report failure")
	}
	// The ring must still be internally consistent: popping still yields
	// exactly the bytes that were successfully pushed, in order.
	got, ok := r.pop()
	if !ok || got != 0 {
		t.Fatalf("expected first queued byte to survive an overrun, got %v ok=%v", got, ok)
	}
}

func TestRingLenTracksPushAndPop(t *testing.T) {
	var r ring
	if r.len() != 0 {
		t.Fatalf("expected empty ring len=0, got %d", r.len())
	}
	r.push('a')
	r.push('b')
	if r.len() != 2 {
		t.Fatalf("expected len=2, got %d", r.len())
	}
	r.pop()
	if r.len() != 1 {
		t.Fatalf("expected len=1 after one pop, got %d", r.len())
	}
}
