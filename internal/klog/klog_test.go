package klog

import (
	"bytes"
	"testing"
)

func TestPrintfBasicVerbs(t *testing.T) {
	var buf bytes.Buffer
	Sink = &buf
	defer func() { Sink = nil }()

	Printf("uart base=0x%x irq=%d ok=%t name=%s", 0x9000000, 33, true, "pl011")
	got := buf.String()
	want := "uart base=0x9000000 irq=33 ok=true name=pl011"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestPrintfNilSinkIsNoOp(t *testing.T) {
	Sink = nil
	Printf("this must not panic %d", 1)
}

func TestPrintfWidthPadsLeft(t *testing.T) {
	var buf bytes.Buffer
	Sink = &buf
	defer func() { Sink = nil }()

	Printf("[%4d]", 7)
	if got := buf.String(); got != "[   7]" {
		t.Fatalf("got %q want %q", got, "[   7]")
	}
}

func TestPrintfLiteralPercent(t *testing.T) {
	var buf bytes.Buffer
	Sink = &buf
	defer func() { Sink = nil }()

	Printf("100%%")
	if got := buf.String(); got != "100%" {
		t.Fatalf("got %q want %q", got, "100%")
	}
}

func TestPrintfHexZero(t *testing.T) {
	var buf bytes.Buffer
	Sink = &buf
	defer func() { Sink = nil }()

	Printf("0x%x", 0)
	if got := buf.String(); got != "0x0" {
		t.Fatalf("got %q want %q", got, "0x0")
	}
}

func TestFatalfWritesToSink(t *testing.T) {
	var buf bytes.Buffer
	Sink = &buf
	defer func() { Sink = nil }()

	Fatalf("boom %s", "now")
	if got := buf.String(); got != "boom now" {
		t.Fatalf("got %q want %q", got, "boom now")
	}
}
