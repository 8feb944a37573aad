package irq

import (
	"bytes"
	"testing"

	"github.com/grosheth/OdinOs-ARM64/internal/klog"
)

const testSpuriousID = 1023

func TestRegisterRejectsOutOfRange(t *testing.T) {
	var tbl Table
	if tbl.Register(MaxLines, func() {}) {
		t.Fatal("expected Register to reject id == MaxLines")
	}
	if tbl.Register(MaxLines+5, func() {}) {
		t.Fatal("expected Register to reject id > MaxLines")
	}
}

func TestRegisterRejectsNilHandler(t *testing.T) {
	var tbl Table
	if tbl.Register(5, nil) {
		t.Fatal("expected Register to reject a nil handler")
	}
}

func TestDispatchCallsRegisteredHandler(t *testing.T) {
	var tbl Table
	called := false
	tbl.Register(33, func() { called = true })

	tbl.Dispatch(33, testSpuriousID)
	if !called {
		t.Fatal("expected handler to run")
	}
	if tbl.Total() != 1 {
		t.Fatalf("expected total=1, got %d", tbl.Total())
	}
	if tbl.Spurious() != 0 || tbl.Unhandled() != 0 {
		t.Fatalf("expected no spurious/unhandled counts, got spurious=%d unhandled=%d", tbl.Spurious(), tbl.Unhandled())
	}
}

func TestDispatchSpuriousIDDoesNotCallAnything(t *testing.T) {
	var tbl Table
	called := false
	tbl.Register(testSpuriousID%MaxLines, func() { called = true })

	tbl.Dispatch(testSpuriousID, testSpuriousID)
	if called {
		t.Fatal("spurious dispatch must not call a handler")
	}
	if tbl.Spurious() != 1 {
		t.Fatalf("expected spurious=1, got %d", tbl.Spurious())
	}
	if tbl.Total() != 1 {
		t.Fatalf("expected total=1, got %d", tbl.Total())
	}
}

func TestDispatchUnhandledIncrementsCounter(t *testing.T) {
	var tbl Table
	tbl.Dispatch(40, testSpuriousID)
	if tbl.Unhandled() != 1 {
		t.Fatalf("expected unhandled=1, got %d", tbl.Unhandled())
	}
}

func TestDispatchUnhandledLogsOnce(t *testing.T) {
	var buf bytes.Buffer
	old := klog.Sink
	klog.Sink = &buf
	defer func() { klog.Sink = old }()

	var tbl Table
	tbl.Dispatch(40, testSpuriousID)

	if bytes.Count(buf.Bytes(), []byte("unhandled")) != 1 {
		t.Fatalf("expected unhandled dispatch to be logged exactly once, got %q", buf.String())
	}
}

func TestRegisterReplacesExistingHandler(t *testing.T) {
	var tbl Table
	firstCalled, secondCalled := false, false
	tbl.Register(10, func() { firstCalled = true })
	tbl.Register(10, func() { secondCalled = true })

	tbl.Dispatch(10, testSpuriousID)
	if firstCalled {
		t.Fatal("expected the first handler to be replaced")
	}
	if !secondCalled {
		t.Fatal("expected the replacement handler to run")
	}
}

func TestUnregisterMakesLineUnhandled(t *testing.T) {
	var tbl Table
	tbl.Register(10, func() {})
	tbl.Unregister(10)
	tbl.Dispatch(10, testSpuriousID)
	if tbl.Unhandled() != 1 {
		t.Fatalf("expected unhandled=1 after Unregister, got %d", tbl.Unhandled())
	}
}

func TestDispatchOutOfRangeIDCountsAsSpurious(t *testing.T) {
	var tbl Table
	tbl.Dispatch(MaxLines+1, testSpuriousID)
	if tbl.Spurious() != 1 {
		t.Fatalf("expected spurious=1 for out-of-range id, got %d", tbl.Spurious())
	}
}
