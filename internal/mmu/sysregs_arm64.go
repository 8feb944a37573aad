//go:build arm64

package mmu

// Bodies for these live in sysregs_arm64.s: direct MSR/MRS access to the
// system registers this kernel's boot sequence programs, following the
// teacher's declare-in-Go/define-in-asm split for register accessors.
func writeMAIREL1(v uint64)
func writeTCREL1(v uint64)
func writeTTBR0EL1(v uint64)
func readSCTLREL1() uint64
func writeSCTLREL1(v uint64)
func invalidateTLBAndICache()
func isb()

// Enable programs MAIR_EL1, TCR_EL1, and TTBR0_EL1 from ts, then
// invalidates the I-cache and TLB before setting SCTLR_EL1's M/C/I bits,
// matching the teacher's enableMMU ordering: attributes and translation
// control before the translation table base, the table base before the
// enable bit, and an ISB after every system register write that affects
// instruction fetch behavior. The invalidate-then-DSB-then-ISB sequence
// before the SCTLR write guarantees no stale I-cache line or TLB entry
// from before the table base was installed survives into the newly
// enabled translation regime.
func Enable(ts *TableSet) {
	writeMAIREL1(mairValue)
	isb()
	writeTCREL1(tcrValue)
	isb()
	writeTTBR0EL1(uint64(tablePtr(&ts.L0)))
	isb()

	invalidateTLBAndICache()

	sctlr := readSCTLREL1()
	sctlr |= sctlrM | sctlrC | sctlrI
	writeSCTLREL1(sctlr)
	isb()
}

// VerifyEnabledHW re-reads SCTLR_EL1 from hardware and checks it via the
// host-testable VerifyEnabled.
func VerifyEnabledHW() bool {
	return VerifyEnabled(readSCTLREL1())
}
