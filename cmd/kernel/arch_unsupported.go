//go:build !arm64

package main

// Stub file to make it a compile error to build this kernel for anything
// other than arm64: there is no host fallback, no emulation shim, nothing
// this package can meaningfully do on another architecture.

func init() {
	// Deliberately undefined. The build fails with:
	//   undefined: compileError_ARCH_NOT_ARM64
	// which is the point: build with GOARCH=arm64.
	compileError_ARCH_NOT_ARM64()
}
