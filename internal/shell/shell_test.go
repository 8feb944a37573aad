package shell

import (
	"strings"
	"testing"

	"github.com/grosheth/OdinOs-ARM64/internal/irq"
)

type stringWriter struct {
	strings.Builder
}

func (w *stringWriter) Puts(s string) { w.WriteString(s) }

func TestFeedEchoesAndCompletesOnCR(t *testing.T) {
	var w stringWriter
	sh := New(&w, "> ", nil)

	for _, c := range "help" {
		if _, done := sh.Feed(byte(c)); done {
			t.Fatal("did not expect completion mid-line")
		}
	}
	line, done := sh.Feed('\r')
	if !done || line != "help" {
		t.Fatalf("expected completed line %q, got %q done=%v", "help", line, done)
	}
}

func TestFeedBackspaceErasesLastChar(t *testing.T) {
	var w stringWriter
	sh := New(&w, "> ", nil)

	sh.Feed('a')
	sh.Feed('b')
	sh.Feed(0x08) // backspace
	line, done := sh.Feed('\n')
	if !done || line != "a" {
		t.Fatalf("expected %q after backspace, got %q", "a", line)
	}
}

func TestFeedBackspaceOnEmptyLineIsNoop(t *testing.T) {
	var w stringWriter
	sh := New(&w, "> ", nil)
	sh.Feed(0x7F) // DEL on empty line
	line, done := sh.Feed('\r')
	if !done || line != "" {
		t.Fatalf("expected empty line, got %q", line)
	}
}

func TestFeedStopsAcceptingAtMaxLine(t *testing.T) {
	var w stringWriter
	sh := New(&w, "> ", nil)
	for i := 0; i < MaxLine+10; i++ {
		sh.Feed('x')
	}
	line, done := sh.Feed('\r')
	if !done {
		t.Fatal("expected completion")
	}
	if len(line) != MaxLine {
		t.Fatalf("expected line capped at %d, got %d", MaxLine, len(line))
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	var w stringWriter
	sh := New(&w, "> ", nil)
	sh.Dispatch("bogus")
	if !strings.Contains(w.String(), "unknown command: bogus") {
		t.Fatalf("expected unknown-command message, got %q", w.String())
	}
}

func TestDispatchStatsReportsCounters(t *testing.T) {
	var w stringWriter
	var tbl irq.Table
	tbl.Dispatch(33, 1023) // unhandled, since nothing registered
	tbl.Dispatch(1023, 1023) // spurious

	sh := New(&w, "> ", &tbl)
	sh.Dispatch("stats")

	out := w.String()
	if !strings.Contains(out, "total=2") || !strings.Contains(out, "spurious=1") || !strings.Contains(out, "unhandled=1") {
		t.Fatalf("unexpected stats output: %q", out)
	}
}

func TestDispatchStatsWithoutIRQTable(t *testing.T) {
	var w stringWriter
	sh := New(&w, "> ", nil)
	sh.Dispatch("stats")
	if !strings.Contains(w.String(), "no irq table attached") {
		t.Fatalf("unexpected output: %q", w.String())
	}
}

func TestDispatchClearEmitsVT100Sequences(t *testing.T) {
	var w stringWriter
	sh := New(&w, "> ", nil)
	sh.Dispatch("clear")
	if !strings.Contains(w.String(), VT100Clear) || !strings.Contains(w.String(), VT100Home) {
		t.Fatalf("expected clear+home escapes, got %q", w.String())
	}
}

func TestSplitCommandWithArgs(t *testing.T) {
	name, args := splitCommand("echo hello world")
	if name != "echo" || args != "hello world" {
		t.Fatalf("got name=%q args=%q", name, args)
	}
}
