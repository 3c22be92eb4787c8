package ctrlffi

import (
	"log/slog"
	"runtime"
	"unsafe"
)

// FunctionID is the 1-based index of a declaration. 0 means failure.
type FunctionID uint

// FunctionInfo describes one declaration.
type FunctionInfo struct {
	ID         FunctionID `json:"id"`
	Name       string     `json:"name"`
	Library    string     `json:"library"`
	ReturnType TypeID     `json:"returntype"`
	ArgTypes   []TypeID   `json:"argtypes"`
}

// function is a declared native entry point. Immutable once appended.
type function struct {
	library string
	symbol  string
	addr    uintptr
	ret     TypeDescriptor
	args    []TypeDescriptor
	desc    *callDescriptor
}

func (f *function) info(id FunctionID) FunctionInfo {
	args := make([]TypeID, len(f.args))
	for i, a := range f.args {
		args[i] = a.ID
	}
	return FunctionInfo{ID: id, Name: f.symbol, Library: f.library, ReturnType: f.ret.ID, ArgTypes: args}
}

// callDescriptor owns a prepared ffi_cif.
type callDescriptor struct {
	cif   unsafe.Pointer
	nargs int
}

// callEngine prepares call descriptors and performs calls through them.
type callEngine interface {
	prepare(abi int, ret TypeDescriptor, args []TypeDescriptor) (*callDescriptor, error)
	invoke(d *callDescriptor, fn uintptr, rvalue, avalue unsafe.Pointer)
}

// Options configure a Catalog.
type Options struct {
	// Loader resolves libraries; nil means a new DLLoader.
	Loader LibraryLoader
	// LibFFIPaths are tried in order; empty means the usual locations.
	LibFFIPaths []string
	// ABI overrides the architecture default when non-zero.
	ABI    int
	Logger *slog.Logger
}

// defaultABI returns libffi's FFI_DEFAULT_ABI for goarch, or 0 if unknown.
func defaultABI(goarch string) int {
	switch goarch {
	case "amd64":
		return 2 // FFI_UNIX64
	case "arm64", "386":
		return 1 // FFI_SYSV
	}
	return 0
}

// Catalog is the append-only list of declared functions. It is not safe
// for concurrent use.
type Catalog struct {
	loader LibraryLoader
	paths  []string
	abi    int
	log    *slog.Logger
	heap   nativeHeap

	engine    callEngine
	engineErr error

	funcs []*function
}

// NewCatalog - an empty catalog; libffi is opened on the first declaration
func NewCatalog(opts Options) *Catalog {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loader := opts.Loader
	if loader == nil {
		loader = NewDLLoader(logger)
	}
	abi := opts.ABI
	if abi == 0 {
		abi = defaultABI(runtime.GOARCH)
	}
	return &Catalog{
		loader: loader,
		paths:  opts.LibFFIPaths,
		abi:    abi,
		log:    logger,
		heap:   cHeap,
	}
}

// ffi opens libffi on first use. A failure is remembered.
func (c *Catalog) ffi() (callEngine, error) {
	if c.engine != nil || c.engineErr != nil {
		return c.engine, c.engineErr
	}
	f, err := openLibFFI(c.loader, c.paths, c.log)
	if err != nil {
		c.engineErr = err
		return nil, err
	}
	c.engine = f
	return f, nil
}

// Declare resolves symbol in library and prepares a call descriptor for
// the given signature. On failure it returns 0 and the catalog is unchanged.
func (c *Catalog) Declare(library, symbol string, ret TypeID, args ...TypeID) (FunctionID, error) {
	addr, err := c.loader.Resolve(library, symbol)
	if err != nil {
		if KindOf(err) == 0 {
			err = wrapError(NotFound, "declare", err, "%s in %s", symbol, library)
		}
		return 0, err
	}

	if ret.IsPointer() {
		return 0, newError(InvalidReturnType, "declare", "%s cannot be returned; return FFI_POINTER instead", ret)
	}
	rd, err := Describe(ret)
	if err != nil {
		return 0, wrapError(NotFound, "declare", err, "return type of %s", symbol)
	}

	ads := make([]TypeDescriptor, len(args))
	for i, a := range args {
		d, err := Describe(a)
		if err != nil {
			return 0, wrapError(NotFound, "declare", err, "argument %d of %s", i+1, symbol)
		}
		if d.Category == VoidCategory {
			return 0, newError(UnsupportedOperation, "declare", "argument %d of %s is void", i+1, symbol)
		}
		ads[i] = d
	}

	engine, err := c.ffi()
	if err != nil {
		return 0, err
	}
	if c.abi == 0 {
		return 0, newError(UnsupportedOperation, "declare", "no default libffi ABI for %s; set libffi.abi", runtime.GOARCH)
	}
	desc, err := engine.prepare(c.abi, rd, ads)
	if err != nil {
		return 0, err
	}

	c.funcs = append(c.funcs, &function{
		library: library,
		symbol:  symbol,
		addr:    addr,
		ret:     rd,
		args:    ads,
		desc:    desc,
	})
	c.log.Debug("declared function", "name", symbol, "library", library, "id", len(c.funcs))
	return FunctionID(len(c.funcs)), nil
}

func (c *Catalog) function(id FunctionID) (*function, error) {
	if id < 1 || int(id) > len(c.funcs) {
		return nil, newError(OutOfRange, "lookup", "function id %d outside [1, %d]", id, len(c.funcs))
	}
	return c.funcs[id-1], nil
}

// Lookup describes the declaration with the given id.
func (c *Catalog) Lookup(id FunctionID) (FunctionInfo, error) {
	f, err := c.function(id)
	if err != nil {
		return FunctionInfo{}, err
	}
	return f.info(id), nil
}

// Functions lists every declaration in id order.
func (c *Catalog) Functions() []FunctionInfo {
	out := make([]FunctionInfo, len(c.funcs))
	for i, f := range c.funcs {
		out[i] = f.info(FunctionID(i + 1))
	}
	return out
}

// Len returns the number of declarations.
func (c *Catalog) Len() int { return len(c.funcs) }
