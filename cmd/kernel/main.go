//go:build arm64

// Command kernel is the entry point boot_arm64.s jumps into once the
// stack is set up and BSS is zeroed. Main never returns.
package main

import (
	"unsafe"

	"github.com/grosheth/OdinOs-ARM64/internal/fdt"
	"github.com/grosheth/OdinOs-ARM64/internal/gic"
	"github.com/grosheth/OdinOs-ARM64/internal/irq"
	"github.com/grosheth/OdinOs-ARM64/internal/klog"
	"github.com/grosheth/OdinOs-ARM64/internal/mmio"
	"github.com/grosheth/OdinOs-ARM64/internal/mmu"
	"github.com/grosheth/OdinOs-ARM64/internal/shell"
	"github.com/grosheth/OdinOs-ARM64/internal/uart"
	"github.com/grosheth/OdinOs-ARM64/internal/vectors"
)

// kernelImageBase and kernelImageSize describe the 2MiB-aligned window
// QEMU virt loads this kernel into and this build's linker script sizes
// for it; 128MiB is generous headroom over the current image.
const (
	kernelImageBase = 0x40000000
	kernelImageSize = 128 << 20
)

// Main is called from assembly with x0 holding the firmware-supplied FDT
// pointer. It never returns: the shell's read loop is the steady state.
func Main(fdtPtr uintptr) {
	wl := mmio.NewWhitelist(mmio.Region{Name: "uart-fallback", Start: uart.FallbackBase, Size: 0x1000})
	bus := mmio.NewPhysBus(wl)
	console := uart.New(bus, uart.FallbackBase)
	console.Init()
	klog.Sink = consoleSink{console}

	klog.Printf("boot: fdt at 0x%x\n", fdtPtr)

	blob := unsafe.Slice((*byte)(unsafe.Pointer(fdtPtr)), fdt.MaxDTSize)
	header, err := fdt.ParseHeader(blob)
	if err != nil {
		klog.Printf("boot: fdt header invalid, continuing with fallback uart only\n")
	} else {
		blob = blob[:header.TotalSize]
	}

	uartInfo, haveUART := fdt.UartInfo{}, false
	gicInfo, haveGIC := fdt.GicInfo{}, false
	if err == nil {
		uartInfo, haveUART = fdt.FindUART(blob, header)
		gicInfo, haveGIC = fdt.FindGIC(blob, header)
	}

	vectors.Install()

	var ts mmu.TableSet
	l2 := ts.Install(kernelImageBase)
	l2.MapRange(kernelImageBase, kernelImageSize, mmu.AttrNormalExec)
	l2.MapRange(alignDown2M(uart.FallbackBase), 2<<20, mmu.AttrDeviceRW)
	if haveGIC {
		wl.Register(mmio.Region{Name: "gicd", Start: gicInfo.DistBase, Size: gicInfo.DistSize})
		wl.Register(mmio.Region{Name: "gicc", Start: gicInfo.CPUBase, Size: gicInfo.CPUSize})
		l2.MapRange(alignDown2M(gicInfo.DistBase), 2<<20, mmu.AttrDeviceRW)
		l2.MapRange(alignDown2M(gicInfo.CPUBase), 2<<20, mmu.AttrDeviceRW)
	}
	if haveUART {
		wl.Register(mmio.Region{Name: "uart", Start: uartInfo.Base, Size: uartInfo.Size})
	}

	mmu.Enable(&ts)
	if !mmu.VerifyEnabledHW() {
		klog.Fatalf("boot: MMU enable verification failed\n")
		for {
			wfeIdle()
		}
	}

	var irqs irq.Table
	var gicCtrl *gic.Controller
	if haveGIC {
		gicCtrl = gic.New(bus, gicInfo.DistBase, gicInfo.CPUBase)
		gicCtrl.Init()
		vectors.IRQHandler = func() {
			id := gicCtrl.Acknowledge()
			irqs.Dispatch(id, gic.SpuriousID)
			if id != gic.SpuriousID {
				gicCtrl.EOI(id)
			}
		}
	}

	if haveGIC && haveUART && uartInfo.IRQ != 0 {
		irqs.Register(uartInfo.IRQ, console.HandleIRQ)
		gicCtrl.Enable(uartInfo.IRQ)
		console.EnableRXInterrupt()
	}

	sh := shell.New(consolePuts{console}, "OdinOS> ", &irqs)
	sh.PromptOnce()
	for {
		b, ok := console.ReadByte()
		if !ok {
			wfeIdle()
			continue
		}
		if line, done := sh.Feed(b); done {
			sh.Dispatch(line)
			sh.PromptOnce()
		}
	}
}

// main is never called: boot_arm64.s's _start jumps straight to Main and
// linker.ld's ENTRY(_start) bypasses Go's normal runtime entry point. This
// stub exists only because the Go linker requires package main to declare
// main.
func main() {}

func alignDown2M(addr uintptr) uintptr {
	const mask = 1<<21 - 1
	return addr &^ mask
}

// consoleSink adapts uart.Driver to io.Writer for klog.
type consoleSink struct{ d *uart.Driver }

func (c consoleSink) Write(p []byte) (int, error) {
	c.d.Puts(string(p))
	return len(p), nil
}

// consolePuts adapts uart.Driver to shell.Writer.
type consolePuts struct{ d *uart.Driver }

func (c consolePuts) Puts(s string) { c.d.Puts(s) }
