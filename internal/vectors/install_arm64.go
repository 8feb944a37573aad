//go:build arm64

package vectors

import "github.com/grosheth/OdinOs-ARM64/internal/klog"

// IRQHandler is called by the assembly IRQ trampoline once per taken IRQ
// vector, before it acks/EOIs through the GIC dispatcher wired in by
// cmd/kernel.
var IRQHandler func()

// FatalSink receives the formatted banner for every non-recoverable
// exception, defaulting to klog.Fatalf's UART sink once cmd/kernel wires
// one up during boot.
var FatalSink func(string)

// Bodies for these live in vectors_arm64.s: vbarInstall points VBAR_EL1
// at the assembled table, vectorsSymbolAddr returns that table's address
// so Go code never needs an unsafe.Pointer to a linker symbol directly.
func vbarInstall(tableAddr uintptr)
func vectorsSymbolAddr() uintptr

// Install points VBAR_EL1 at the assembled vector table. Must run after
// the table's own memory (part of the kernel image) is mapped executable.
func Install() {
	vbarInstall(vectorsSymbolAddr())
}

// dispatchSync is called by the assembly sync-exception trampoline.
func dispatchSync(source Source, frame *Frame) {
	halt(BuildFatalReport(source, KindSync, *frame))
}

// dispatchIRQ is called by the assembly IRQ trampoline.
func dispatchIRQ() {
	if IRQHandler != nil {
		IRQHandler()
	}
}

// dispatchFIQ is called by the assembly FIQ trampoline; FIQ is unused by
// this kernel's configuration and treated as fatal if it ever fires.
func dispatchFIQ(source Source, frame *Frame) {
	halt(BuildFatalReport(source, KindFIQ, *frame))
}

// dispatchSError is called by the assembly SError trampoline.
func dispatchSError(source Source, frame *Frame) {
	halt(BuildFatalReport(source, KindSError, *frame))
}

func halt(r FatalReport) {
	msg := r.Format()
	if FatalSink != nil {
		FatalSink(msg)
	} else {
		klog.Fatalf("%s", msg)
	}
	for {
		wfe()
	}
}

// wfe's body lives in vectors_arm64.s.
func wfe()
