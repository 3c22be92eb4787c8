//go:build !darwin && !freebsd && !linux

package ctrlffi

import (
	"log/slog"
	"unsafe"
)

// LibraryLoader resolves libraries and the entry points inside them.
type LibraryLoader interface {
	Load(path string) error
	Resolve(path, name string) (uintptr, error)
}

// DLLoader is unavailable on this platform; every lookup fails.
type DLLoader struct{}

// NewDLLoader - a loader that always fails on this platform
func NewDLLoader(*slog.Logger) *DLLoader { return &DLLoader{} }

// Load - unsupported on this platform
func (*DLLoader) Load(path string) error {
	return newError(UnsupportedOperation, "load", "dynamic loading is not supported on this platform")
}

// Resolve - unsupported on this platform
func (*DLLoader) Resolve(path, name string) (uintptr, error) {
	return 0, newError(UnsupportedOperation, "resolve", "dynamic loading is not supported on this platform")
}

func cString(p unsafe.Pointer) string {
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(p), n))
}
