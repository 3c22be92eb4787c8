//go:build darwin || freebsd || linux

package ctrlffi

import (
	"log/slog"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/puzpuzpuz/xsync"
	"golang.org/x/sys/unix"
)

// LibraryLoader resolves libraries and the entry points inside them.
type LibraryLoader interface {
	Load(path string) error
	Resolve(path, name string) (uintptr, error)
}

// DLLoader is the default LibraryLoader. Libraries are opened once per path
// with RTLD_NOW|RTLD_GLOBAL and never closed.
type DLLoader struct {
	xsync.RBMutex
	handles map[string]uintptr
	log     *slog.Logger
}

// NewDLLoader - an empty loader; libraries open on first use
func NewDLLoader(logger *slog.Logger) *DLLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &DLLoader{handles: make(map[string]uintptr), log: logger}
}

func (l *DLLoader) handle(path string) (uintptr, bool) {
	tk := l.RLock()
	h, ok := l.handles[path]
	l.RUnlock(tk)
	return h, ok
}

func (l *DLLoader) open(path string) (uintptr, error) {
	if h, ok := l.handle(path); ok {
		return h, nil
	}

	l.Lock()
	defer l.Unlock()
	if h, ok := l.handles[path]; ok {
		return h, nil
	}
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return 0, wrapError(NotFound, "load", err, "cannot open library %q", path)
	}
	l.handles[path] = h
	l.log.Debug("opened library", "path", path)
	return h, nil
}

// Load - opens path once, keeping the handle for later lookups
func (l *DLLoader) Load(path string) error {
	_, err := l.open(path)
	return err
}

// Resolve - the address of name in path, opening path if needed
func (l *DLLoader) Resolve(path, name string) (uintptr, error) {
	h, err := l.open(path)
	if err != nil {
		return 0, err
	}
	addr, err := purego.Dlsym(h, name)
	if err != nil || addr == 0 {
		return 0, wrapError(NotFound, "resolve", err, "symbol %q not found in %q", name, path)
	}
	return addr, nil
}

// cString copies the NUL-terminated text at p.
func cString(p unsafe.Pointer) string {
	return unix.BytePtrToString((*byte)(p))
}
