// Package shell implements the line-oriented console this kernel serves
// over the UART: a fixed-size line editor with CR/LF/backspace/delete
// handling, VT100 clear/home escapes, and a small static command table.
package shell

import (
	"github.com/grosheth/OdinOs-ARM64/internal/irq"
)

// MaxLine bounds a single input line, matching the UART driver's own
// transmit cap.
const MaxLine = 4096

const (
	ctrlCR = '\r'
	ctrlLF = '\n'
	ctrlBS = 0x08
	ctrlDEL = 0x7F
)

// VT100 escapes this shell emits.
const (
	VT100Clear = "\x1b[2J"
	VT100Home  = "\x1b[H"
)

// Writer is the minimal output surface a Shell writes to; internal/uart's
// Driver satisfies it via Puts, and tests satisfy it with a strings
// builder.
type Writer interface {
	Puts(s string)
}

// Command is one entry of the static command table.
type Command struct {
	Name string
	Run  func(sh *Shell, args string)
}

// Shell holds one line-editing session's state plus the command table and
// IRQ counters it can report on.
type Shell struct {
	out      Writer
	prompt   string
	line     [MaxLine]byte
	pos      int
	commands []Command
	irqs     *irq.Table
}

// New builds a Shell writing prompts and output through out, with irqs as
// the counters the built-in "stats" command reports.
func New(out Writer, prompt string, irqs *irq.Table) *Shell {
	sh := &Shell{out: out, prompt: prompt, irqs: irqs}
	sh.commands = []Command{
		{Name: "help", Run: cmdHelp},
		{Name: "stats", Run: cmdStats},
		{Name: "clear", Run: cmdClear},
	}
	return sh
}

// PromptOnce writes the prompt string.
func (sh *Shell) PromptOnce() {
	sh.out.Puts(sh.prompt)
}

// Feed processes one input byte, returning the completed line (without
// its terminator) and true once CR or LF closes it. Backspace and delete
// erase the previous character, echoing a destructive backspace sequence;
// a line at MaxLine silently stops accepting further characters until it
// is closed, matching the ring buffer's own drop-on-overrun policy.
func (sh *Shell) Feed(b byte) (string, bool) {
	switch b {
	case ctrlCR, ctrlLF:
		line := string(sh.line[:sh.pos])
		sh.pos = 0
		sh.out.Puts("\r\n")
		return line, true

	case ctrlBS, ctrlDEL:
		if sh.pos > 0 {
			sh.pos--
			sh.out.Puts("\b \b")
		}
		return "", false

	default:
		if sh.pos < MaxLine {
			sh.line[sh.pos] = b
			sh.pos++
			sh.out.Puts(string(b))
		}
		return "", false
	}
}

// Dispatch splits line into a command name and argument string on the
// first space, and runs the matching command. Unknown commands print a
// short error; this is the entire out-of-core dispatch contract this
// shell needs to exercise the rest of the stack in tests.
func (sh *Shell) Dispatch(line string) {
	if line == "" {
		return
	}
	name, args := splitCommand(line)
	for _, c := range sh.commands {
		if c.Name == name {
			c.Run(sh, args)
			return
		}
	}
	sh.out.Puts("unknown command: " + name + "\r\n")
}

func splitCommand(line string) (name, args string) {
	for i := 0; i < len(line); i++ {
		if line[i] == ' ' {
			return line[:i], line[i+1:]
		}
	}
	return line, ""
}

func cmdHelp(sh *Shell, _ string) {
	for _, c := range sh.commands {
		sh.out.Puts(c.Name + "\r\n")
	}
}

func cmdClear(sh *Shell, _ string) {
	sh.out.Puts(VT100Clear + VT100Home)
}

func cmdStats(sh *Shell, _ string) {
	if sh.irqs == nil {
		sh.out.Puts("no irq table attached\r\n")
		return
	}
	sh.out.Puts(formatStats(sh.irqs.Total(), sh.irqs.Spurious(), sh.irqs.Unhandled()))
}

func formatStats(total, spurious, unhandled uint64) string {
	return "total=" + uitoa(total) + " spurious=" + uitoa(spurious) + " unhandled=" + uitoa(unhandled) + "\r\n"
}

func uitoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
