// Package irq implements the fixed-size interrupt dispatch table this
// kernel installs between the GIC's acknowledge/EOI protocol and each
// device driver's handler: at most 1020 lines (matching GICv2's 1020
// usable interrupt IDs), no dynamic registration structure, no nesting.
package irq

import (
	"sync/atomic"

	"github.com/grosheth/OdinOs-ARM64/internal/klog"
)

// MaxLines is the number of interrupt IDs this table accepts (0 through
// MaxLines-1), matching GICv2's architectural maximum (IDs 1020-1023 are reserved for
// special/spurious use).
const MaxLines = 1020

// Handler is called once per acknowledged interrupt, with interrupts
// masked and no nesting; it must not block.
type Handler func()

// Table is the fixed-size handler table plus dispatch counters. The zero
// value is ready to use.
type Table struct {
	handlers [MaxLines]Handler

	total     atomic.Uint64
	spurious  atomic.Uint64
	unhandled atomic.Uint64
}

// Register installs handler for id, replacing whatever was previously
// registered. Returns false if id is out of range or handler is nil.
func (t *Table) Register(id uint32, handler Handler) bool {
	if id >= MaxLines || handler == nil {
		return false
	}
	t.handlers[id] = handler
	return true
}

// Unregister clears whatever handler is installed for id.
func (t *Table) Unregister(id uint32) {
	if id < MaxLines {
		t.handlers[id] = nil
	}
}

// Dispatch runs the handler registered for id, tracking totals. A
// spuriousID value (or any id >= MaxLines) increments the spurious
// counter and calls nothing. An in-range id with no handler installed
// increments the unhandled counter and calls nothing — callers are still
// expected to EOI it, since the GIC has already committed to servicing it.
func (t *Table) Dispatch(id uint32, spuriousID uint32) {
	t.total.Add(1)

	if id == spuriousID || id >= MaxLines {
		t.spurious.Add(1)
		return
	}

	h := t.handlers[id]
	if h == nil {
		t.unhandled.Add(1)
		klog.Printf("irq: unhandled id=%d\n", id)
		return
	}
	h()
}

// Total, Spurious, and Unhandled report the dispatcher's running counters.
func (t *Table) Total() uint64     { return t.total.Load() }
func (t *Table) Spurious() uint64  { return t.spurious.Load() }
func (t *Table) Unhandled() uint64 { return t.unhandled.Load() }
