//go:build noffi || !cgo || !(darwin || freebsd || linux)

package ctrlffi

import (
	"log/slog"
	"unsafe"
)

// cHeap has nothing to hand out in this build.
var cHeap nativeHeap = noHeap{}

type noHeap struct{}

func (noHeap) alloc(uintptr, bool) unsafe.Pointer { return nil }
func (noHeap) free(unsafe.Pointer)                 {}

type libFFI struct{}

func openLibFFI(LibraryLoader, []string, *slog.Logger) (*libFFI, error) {
	return nil, newError(UnsupportedOperation, "libffi", "native calls are disabled in this build (needs cgo, without the noffi tag)")
}

func (*libFFI) prepare(int, TypeDescriptor, []TypeDescriptor) (*callDescriptor, error) {
	return nil, newError(UnsupportedOperation, "prepare", "native calls are disabled in this build")
}

func (*libFFI) invoke(*callDescriptor, uintptr, unsafe.Pointer, unsafe.Pointer) {}
