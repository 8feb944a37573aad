// Package klog is a no-allocation formatter for kernel diagnostics: a
// small verb scanner over %s/%d/%x/%t with optional field width, writing
// directly to an io.Writer so boot-time and IRQ-context logging never
// touches the Go heap.
package klog

import "io"

// Sink is where every log line goes. cmd/kernel points this at the UART
// driver during boot; tests point it at a bytes.Buffer.
var Sink io.Writer

// Fatalf formats msg and writes it to Sink exactly as Printf does; no
// newline is appended. It does not halt — callers that need a halt-and-spin (internal/vectors) do that
// themselves after logging, since klog has no notion of "the machine".
func Fatalf(format string, args ...interface{}) {
	Printf(format, args...)
}

// Printf formats format against args and writes the result to Sink. A
// nil Sink is a silent no-op rather than a panic, so early boot code that
// runs before the UART is initialized can call it unconditionally.
func Printf(format string, args ...interface{}) {
	if Sink == nil {
		return
	}
	var buf [512]byte
	n := format1(buf[:0], format, args)
	Sink.Write(buf[:n])
}

// format1 scans format, substituting verbs from args in order, appending
// into buf (which the caller allocates once, on the stack) and returning
// the number of bytes written.
func format1(buf []byte, format string, args []interface{}) int {
	argi := 0
	nextArg := func() interface{} {
		if argi >= len(args) {
			return nil
		}
		a := args[argi]
		argi++
		return a
	}

	i := 0
	for i < len(format) {
		c := format[i]
		if c != '%' {
			buf = append(buf, c)
			i++
			continue
		}
		i++
		if i >= len(format) {
			buf = append(buf, '%')
			break
		}

		width := 0
		for i < len(format) && format[i] >= '0' && format[i] <= '9' {
			width = width*10 + int(format[i]-'0')
			i++
		}
		if i >= len(format) {
			break
		}

		verb := format[i]
		i++
		start := len(buf)
		switch verb {
		case '%':
			buf = append(buf, '%')
		case 's':
			if s, ok := nextArg().(string); ok {
				buf = append(buf, s...)
			}
		case 'd':
			buf = appendInt(buf, nextArg())
		case 'x':
			buf = appendHex(buf, nextArg())
		case 't':
			if v, ok := nextArg().(bool); ok {
				if v {
					buf = append(buf, "true"...)
				} else {
					buf = append(buf, "false"...)
				}
			}
		default:
			buf = append(buf, '%', verb)
		}
		if width > 0 {
			buf = padLeft(buf, start, width)
		}
	}
	return len(buf)
}

func padLeft(buf []byte, start, width int) []byte {
	n := len(buf) - start
	if n >= width {
		return buf
	}
	pad := width - n
	buf = append(buf, make([]byte, pad)...)
	copy(buf[start+pad:], buf[start:start+n])
	for i := 0; i < pad; i++ {
		buf[start+i] = ' '
	}
	return buf
}

func appendInt(buf []byte, v interface{}) []byte {
	u, neg, ok := toUint64(v)
	if !ok {
		return buf
	}
	if neg {
		buf = append(buf, '-')
	}
	return appendUintBase(buf, u, 10, "0123456789")
}

func appendHex(buf []byte, v interface{}) []byte {
	u, _, ok := toUint64(v)
	if !ok {
		return buf
	}
	return appendUintBase(buf, u, 16, "0123456789abcdef")
}

func appendUintBase(buf []byte, u uint64, base uint64, digits string) []byte {
	if u == 0 {
		return append(buf, '0')
	}
	var tmp [64]byte
	n := len(tmp)
	for u > 0 {
		n--
		tmp[n] = digits[u%base]
		u /= base
	}
	return append(buf, tmp[n:]...)
}

func toUint64(v interface{}) (u uint64, neg bool, ok bool) {
	switch x := v.(type) {
	case int:
		if x < 0 {
			return uint64(-x), true, true
		}
		return uint64(x), false, true
	case int32:
		if x < 0 {
			return uint64(-x), true, true
		}
		return uint64(x), false, true
	case int64:
		if x < 0 {
			return uint64(-x), true, true
		}
		return uint64(x), false, true
	case uint:
		return uint64(x), false, true
	case uint8:
		return uint64(x), false, true
	case uint16:
		return uint64(x), false, true
	case uint32:
		return uint64(x), false, true
	case uint64:
		return x, false, true
	case uintptr:
		return uint64(x), false, true
	default:
		return 0, false, false
	}
}
