package sdspi

import (
	"unsafe"

	"golang.org/x/exp/constraints"
)

// align rounds val up to the nearest multiple of n, following cyrw/def.go's
// generic align helper.
func align[T constraints.Unsigned](val, n T) T {
	return (val + n - 1) &^ (n - 1)
}

// bufAddr returns the address of buf's backing array, or 0 for an empty
// slice. Used only to round DMA transfer ranges out to cache-line
// boundaries and to check DMA alignment; never dereferenced as a pointer.
func bufAddr(buf []byte) uintptr {
	if len(buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&buf[0]))
}

// isAligned reports whether buf's backing array starts on an n-byte
// boundary, the DMA eligibility test of §4.A.
func isAligned(buf []byte, n uint32) bool {
	if len(buf) == 0 {
		return false
	}
	return bufAddr(buf)%uintptr(n) == 0
}
