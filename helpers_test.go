package ctrlffi

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// goHeap hands out Go memory and keeps it reachable until freed.
// Allocations without zero are filled with junk, like malloc may return.
type goHeap struct {
	live  map[unsafe.Pointer][]byte
	zeros []bool
	frees int
}

const junk = 0xA5

func newGoHeap() *goHeap {
	return &goHeap{live: make(map[unsafe.Pointer][]byte)}
}

func (h *goHeap) alloc(n uintptr, zero bool) unsafe.Pointer {
	// round up so word loads never run past the buffer
	b := make([]byte, (n+7)&^7)
	if !zero {
		for i := range b {
			b[i] = junk
		}
	}
	h.zeros = append(h.zeros, zero)
	p := unsafe.Pointer(&b[0])
	h.live[p] = b
	return p
}

func (h *goHeap) free(p unsafe.Pointer) {
	delete(h.live, p)
	h.frees++
}

// fakeLoader resolves symbols from a fixed table keyed "library:symbol".
type fakeLoader struct {
	syms map[string]uintptr
}

func (l *fakeLoader) Load(path string) error {
	for k := range l.syms {
		if len(k) > len(path) && k[:len(path)+1] == path+":" {
			return nil
		}
	}
	return newError(NotFound, "load", "no library %q", path)
}

func (l *fakeLoader) Resolve(path, name string) (uintptr, error) {
	if a, ok := l.syms[path+":"+name]; ok {
		return a, nil
	}
	return 0, newError(NotFound, "resolve", "symbol %q not found in %q", name, path)
}

// nativeFunc stands in for a native entry point: it receives the return
// slot and the argument vector exactly as ffi_call would.
type nativeFunc func(rvalue unsafe.Pointer, args []unsafe.Pointer)

type fakeEngine struct {
	funcs       map[uintptr]nativeFunc
	prepared    int
	invoked     int
	lastABI     int
	prepareFail error
}

func (e *fakeEngine) prepare(abi int, _ TypeDescriptor, args []TypeDescriptor) (*callDescriptor, error) {
	if e.prepareFail != nil {
		return nil, e.prepareFail
	}
	e.prepared++
	e.lastABI = abi
	return &callDescriptor{nargs: len(args)}, nil
}

func (e *fakeEngine) invoke(d *callDescriptor, fn uintptr, rvalue, avalue unsafe.Pointer) {
	e.invoked++
	e.funcs[fn](rvalue, unsafe.Slice((*unsafe.Pointer)(avalue), d.nargs))
}

// fake entry points
const (
	addrAbs uintptr = 0x1000 + iota
	addrFrexp
	addrStrlen
	addrGreet
	addrTouch
	addrAnswer
	addrFill
)

var greeting = []byte("hello\x00")

type fixture struct {
	loader  *fakeLoader
	engine  *fakeEngine
	heap    *goHeap
	catalog *Catalog
	touched int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{heap: newGoHeap()}
	f.loader = &fakeLoader{syms: map[string]uintptr{
		"libc:abs":    addrAbs,
		"libm:frexp":  addrFrexp,
		"libc:strlen": addrStrlen,
		"libc:greet":  addrGreet,
		"libc:touch":  addrTouch,
		"libc:answer": addrAnswer,
		"libc:fill":   addrFill,
	}}
	f.engine = &fakeEngine{funcs: map[uintptr]nativeFunc{
		addrAbs: func(r unsafe.Pointer, a []unsafe.Pointer) {
			v := *(*int32)(a[0])
			if v < 0 {
				v = -v
			}
			// libffi widens narrow integral returns to a full register word
			*(*uintptr)(r) = uintptr(int64(v))
		},
		addrFrexp: func(r unsafe.Pointer, a []unsafe.Pointer) {
			frac, exp := math.Frexp(*(*float64)(a[0]))
			*(*int32)(*(*unsafe.Pointer)(a[1])) = int32(exp)
			*(*float64)(r) = frac
		},
		addrStrlen: func(r unsafe.Pointer, a []unsafe.Pointer) {
			s := *(*unsafe.Pointer)(a[0])
			n := uintptr(0)
			for *(*byte)(unsafe.Add(s, n)) != 0 {
				n++
			}
			*(*uintptr)(r) = n
		},
		addrGreet: func(r unsafe.Pointer, _ []unsafe.Pointer) {
			*(*unsafe.Pointer)(r) = unsafe.Pointer(&greeting[0])
		},
		addrTouch: func(unsafe.Pointer, []unsafe.Pointer) {
			f.touched++
		},
		addrAnswer: func(r unsafe.Pointer, _ []unsafe.Pointer) {
			*(*uintptr)(r) = 42
		},
		addrFill: func(r unsafe.Pointer, a []unsafe.Pointer) {
			p := *(*unsafe.Pointer)(a[0])
			c := *(*int32)(a[1])
			n := *(*uintptr)(a[2])
			for i := uintptr(0); i < n; i++ {
				*(*byte)(unsafe.Add(p, i)) = byte(c)
			}
			*(*unsafe.Pointer)(r) = p
		},
	}}
	f.catalog = NewCatalog(Options{Loader: f.loader, ABI: 2, Logger: discard})
	f.catalog.engine = f.engine
	f.catalog.heap = f.heap
	return f
}

func (f *fixture) declare(t *testing.T, lib, sym string, ret TypeID, args ...TypeID) FunctionID {
	t.Helper()
	id, err := f.catalog.Declare(lib, sym, ret, args...)
	require.NoError(t, err)
	return id
}

// buffer returns Go memory addressed like a native buffer. The slice must
// stay referenced by the caller for as long as the address is used.
func buffer(n int) ([]byte, uintptr) {
	b := make([]byte, n)
	return b, uintptr(unsafe.Pointer(&b[0]))
}

type reportEntry struct {
	sev      Severity
	kind     Kind
	location string
	message  string
}

type recordingReporter struct {
	reports []reportEntry
}

func (r *recordingReporter) Report(sev Severity, kind Kind, location, message string) {
	r.reports = append(r.reports, reportEntry{sev, kind, location, message})
}
