//go:build (darwin || freebsd || linux) && cgo && !noffi

package ctrlffi

/*
#include <stdint.h>
#include <stdlib.h>
#include <string.h>

// No #include <ffi.h>: libffi is opened at run time and reached through
// the addresses resolved by the library loader.

typedef int  (*prep_cif_fn)(void *cif, int abi, unsigned int nargs, void *rtype, void **atypes);
typedef void (*call_fn)(void *cif, void *fn, void *rvalue, void **avalue);

// leading fields of libffi's ffi_type
typedef struct {
    size_t size;
    unsigned short alignment;
    unsigned short type;
} ffi_type_head;

static int ffi_prep(uintptr_t prep, void *cif, int abi, unsigned int nargs, uintptr_t rtype, void *atypes) {
    return ((prep_cif_fn)prep)(cif, abi, nargs, (void *)rtype, (void **)atypes);
}

static void ffi_invoke(uintptr_t call, void *cif, uintptr_t fn, void *rvalue, void *avalue) {
    ((call_fn)call)(cif, (void *)fn, rvalue, (void **)avalue);
}

static size_t ffi_type_size(uintptr_t t) {
    return ((ffi_type_head *)t)->size;
}
*/
import "C"

import (
	"log/slog"
	"unsafe"
)

// cHeap allocates from the C heap so native code may hold on to the memory.
var cHeap nativeHeap = cAllocator{}

type cAllocator struct{}

func (cAllocator) alloc(n uintptr, zero bool) unsafe.Pointer {
	if zero {
		return C.calloc(1, C.size_t(n))
	}
	return C.malloc(C.size_t(n))
}

func (cAllocator) free(p unsafe.Pointer) {
	C.free(p)
}

// libFFI holds the entry points and type descriptors of a loaded libffi.
type libFFI struct {
	path    string
	prepCIF uintptr
	call    uintptr
	types   map[string]uintptr
}

func ffiStatus(s C.int) string {
	switch s {
	case 0:
		return "FFI_OK"
	case 1:
		return "FFI_BAD_TYPEDEF"
	case 2:
		return "FFI_BAD_ABI"
	case 3:
		return "FFI_BAD_ARGTYPE"
	}
	return "unknown status"
}

// openLibFFI tries each path in turn and binds the first libffi that has
// every symbol we need.
func openLibFFI(loader LibraryLoader, paths []string, logger *slog.Logger) (*libFFI, error) {
	if len(paths) == 0 {
		paths = defaultLibFFIPaths
	}
	var lastErr error
	for _, p := range paths {
		f, err := bindLibFFI(loader, p)
		if err != nil {
			lastErr = err
			continue
		}
		f.checkSizes(logger)
		logger.Debug("loaded libffi", "path", p)
		return f, nil
	}
	return nil, wrapError(UnsupportedOperation, "libffi", lastErr, "libffi could not be loaded")
}

func bindLibFFI(loader LibraryLoader, path string) (*libFFI, error) {
	if err := loader.Load(path); err != nil {
		return nil, err
	}
	f := &libFFI{path: path, types: make(map[string]uintptr)}

	var err error
	if f.prepCIF, err = loader.Resolve(path, "ffi_prep_cif"); err != nil {
		return nil, err
	}
	if f.call, err = loader.Resolve(path, "ffi_call"); err != nil {
		return nil, err
	}
	for _, d := range registry {
		if d.ffiSymbol == "" {
			continue
		}
		if _, ok := f.types[d.ffiSymbol]; ok {
			continue
		}
		addr, err := loader.Resolve(path, d.ffiSymbol)
		if err != nil {
			return nil, err
		}
		f.types[d.ffiSymbol] = addr
	}
	return f, nil
}

// checkSizes compares the registry with libffi's own idea of each type.
func (f *libFFI) checkSizes(logger *slog.Logger) {
	for _, d := range registry {
		if d.Category != Scalar {
			continue
		}
		got := uintptr(C.ffi_type_size(C.uintptr_t(f.types[d.ffiSymbol])))
		if got != d.Size {
			logger.Warn("type size differs from libffi", "type", d.Name, "registry", d.Size, "libffi", got)
		}
	}
}

// prepare builds a cif for the signature. The cif and its argument type
// vector share one C allocation owned by the returned descriptor.
func (f *libFFI) prepare(abi int, ret TypeDescriptor, args []TypeDescriptor) (*callDescriptor, error) {
	n := len(args)
	mem := cHeap.alloc(cifSize+uintptr(n+1)*pointerSize, true)
	if mem == nil {
		return nil, newError(UnsupportedOperation, "prepare", "cannot allocate call descriptor")
	}
	atypes := unsafe.Add(mem, cifSize)
	vec := unsafe.Slice((*uintptr)(atypes), n+1)
	for i, a := range args {
		vec[i] = f.types[a.ffiSymbol]
	}

	status := C.ffi_prep(C.uintptr_t(f.prepCIF), mem, C.int(abi), C.uint(n), C.uintptr_t(f.types[ret.ffiSymbol]), atypes)
	if status != 0 {
		cHeap.free(mem)
		return nil, newError(UnsupportedOperation, "prepare", "ffi_prep_cif failed with %s (abi %d)", ffiStatus(status), abi)
	}
	return &callDescriptor{cif: mem, nargs: n}, nil
}

// invoke performs the native call. rvalue and every entry of avalue must
// live in C memory.
func (f *libFFI) invoke(d *callDescriptor, fn uintptr, rvalue, avalue unsafe.Pointer) {
	C.ffi_invoke(C.uintptr_t(f.call), d.cif, C.uintptr_t(fn), rvalue, avalue)
}
