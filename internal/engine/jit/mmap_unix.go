//go:build amd64 && (linux || darwin)

package jit

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// codeBuffer is a single function's mmapped machine code, anonymous and
// mapped PROT_EXEC so the page is never simultaneously writable and
// executable once emission completes (spec.md §4.6 "Correct W(+)X page
// transitions after emission"). mem is kept around (rather than just its
// address) so release can hand the exact same slice back to Munmap.
type codeBuffer struct {
	mem []byte
}

// mmapExecutable copies code into a fresh anonymous mapping, then flips it
// from RW to RX, mirroring the teacher's mmapCodeSegment/munmapCodeSegment
// pairing (seen in its jit package tests) but built on golang.org/x/sys/unix
// rather than a hand-rolled raw-syscall wrapper.
func mmapExecutable(code []byte) (*codeBuffer, error) {
	if len(code) == 0 {
		panic("jit: mmapExecutable with zero length")
	}
	b, err := unix.Mmap(-1, 0, len(code), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("jit: mmap: %w", err)
	}
	copy(b, code)
	if err := unix.Mprotect(b, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(b)
		return nil, fmt.Errorf("jit: mprotect rx: %w", err)
	}
	return &codeBuffer{mem: b}, nil
}

// release unmaps this function's code page. Not currently called: compiled
// code lives for the lifetime of the owning *wasm.Function, same as every
// other tier's cache (spec.md §9 "compute-once"), but kept as the
// counterpart to mmapExecutable so the mapping's lifecycle is documented
// even though nothing tears it down early.
func (c *codeBuffer) release() error {
	return unix.Munmap(c.mem)
}
