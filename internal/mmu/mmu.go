// Package mmu builds the identity-mapped, 3-level (L0/L1/L2) page tables
// this kernel installs before enabling the MMU: every mapped region is a
// 2MiB L2 block, never a demand-paged 4KiB leaf, because nothing in this
// kernel allocates page frames at runtime.
package mmu

import (
	"fmt"
	"unsafe"

	"github.com/grosheth/OdinOs-ARM64/bitfield"
)

const (
	// blockSize is the granularity every mapping is rounded to: an L2
	// block descriptor covers exactly 2MiB.
	blockSize = 2 << 20

	entriesPerTable = 512

	// PTE descriptor type/validity bits.
	descValid = 1 << 0
	descTable = 1 << 1 // set at L0/L1 for a table descriptor; clear at L2 for a block

	// AttrIndx values into MAIR_EL1.
	attrIdxNormal = 0
	attrIdxDevice = 1

	// Access flag and shareability.
	afSet        = 1 << 10
	shInner      = 3 << 8
	apRWKernel   = 0 << 6
	apReadOnly   = 1 << 7
	uxnBit       = 1 << 54
	pxnBit       = 1 << 53
)

// MAIR_EL1 attribute encodings this kernel installs at boot.
const (
	mairNormalWB    = 0xFF // normal memory, write-back, read/write-allocate
	mairDeviceNGnRnE = 0x00 // device-nGnRnE: no gathering, no reordering, no early write ack
)

// pteAttrs is the register-shaped view of a block descriptor's attribute
// bits, packed via bitfield.
type pteAttrs struct {
	Valid   bool  `bitfield:"1"`
	Table   bool  `bitfield:"1"`
	AttrIdx uint8 `bitfield:"3"`
	NS      bool  `bitfield:"1"`
	AP      uint8 `bitfield:"2"`
	SH      uint8 `bitfield:"2"`
	AF      bool  `bitfield:"1"`
}

func (a pteAttrs) pack() uint64 {
	v, err := bitfield.Pack(&a, &bitfield.Config{NumBits: 11})
	if err != nil {
		// Every call site here builds a-struct with values fixed by this
		// package's own constants; a packing failure means those
		// constants stopped fitting their declared widths.
		panic(fmt.Sprintf("mmu: pteAttrs.pack: %v", err))
	}
	return v
}

// Table is one 4KiB-aligned, 512-entry page table (L0, L1, or L2).
type Table struct {
	entries [entriesPerTable]uint64
}

// Attr selects the memory type and permissions a mapping is created
// with.
type Attr int

const (
	AttrNormalExec Attr = iota // kernel image: normal memory, executable, RW
	AttrDeviceRW               // MMIO windows: device memory, RW, never executed
)

// MapRange installs 2MiB block descriptors covering [base, base+size) into
// l2, indexed by the L2 index derived from each block's virtual address.
// base and size must both be 2MiB aligned; l1 must already have a table
// descriptor installed for the L1 index this range falls under, which the
// caller arranges via Install.
func (l2 *Table) MapRange(base uintptr, size uintptr, attr Attr) error {
	if base%blockSize != 0 || size%blockSize != 0 {
		return fmt.Errorf("mmu: MapRange: base 0x%x and size 0x%x must be 2MiB aligned", base, size)
	}

	var a pteAttrs
	var xn uint64
	switch attr {
	case AttrNormalExec:
		a = pteAttrs{Valid: true, Table: false, AttrIdx: attrIdxNormal, AP: 0, SH: 3, AF: true}
	case AttrDeviceRW:
		a = pteAttrs{Valid: true, Table: false, AttrIdx: attrIdxDevice, AP: 0, SH: 2, AF: true}
		xn = uxnBit | pxnBit
	default:
		return fmt.Errorf("mmu: MapRange: unknown attr %d", attr)
	}
	desc := a.pack() | xn

	for off := uintptr(0); off < size; off += blockSize {
		addr := base + off
		idx := l2Index(addr)
		l2.entries[idx] = desc | uint64(addr)
	}
	return nil
}

func l0Index(va uintptr) uintptr { return (va >> 39) & (entriesPerTable - 1) }
func l1Index(va uintptr) uintptr { return (va >> 30) & (entriesPerTable - 1) }
func l2Index(va uintptr) uintptr { return (va >> 21) & (entriesPerTable - 1) }

// TableSet is the fixed, statically allocated set of tables this kernel
// ever installs: one L0, one L1 (this kernel only ever populates a single
// 1GiB L1 window, matching QEMU virt's layout), and one L2 covering that
// window's 512 possible 2MiB blocks.
type TableSet struct {
	L0 Table
	L1 Table
	L2 Table
}

// Install wires L0->L1->L2 as table descriptors for the single 1GiB
// window this kernel maps, and returns the L2 table MapRange calls
// should target.
func (ts *TableSet) Install(windowBase uintptr) *Table {
	l0i := l0Index(windowBase)
	l1i := l1Index(windowBase)

	l1Desc := pteAttrs{Valid: true, Table: true}.pack() | uint64(uintptr(tablePtr(&ts.L1)))
	ts.L0.entries[l0i] = l1Desc

	l2Desc := pteAttrs{Valid: true, Table: true}.pack() | uint64(uintptr(tablePtr(&ts.L2)))
	ts.L1.entries[l1i] = l2Desc

	return &ts.L2
}

// tablePtr returns the physical address of a table. This kernel runs
// identity-mapped before the MMU is enabled, so a Table's Go address and
// its physical address are the same value.
func tablePtr(t *Table) uintptr {
	return uintptr(unsafe.Pointer(t))
}
