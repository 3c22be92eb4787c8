package ctrlffi

import (
	"log/slog"
)

// Handler is the surface a host interpreter binds its script functions to.
// Every operation returns the neutral result (0, false, "" or nil) together
// with the error, and reports the error before returning it.
//
// A Handler is not safe for concurrent use.
type Handler struct {
	catalog  *Catalog
	mem      *Memory
	reporter Reporter
	log      *slog.Logger
}

// NewHandler builds a Handler. A nil reporter logs through the Options logger.
func NewHandler(opts Options, reporter Reporter) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if reporter == nil {
		reporter = LogReporter{Logger: opts.Logger}
	}
	return &Handler{
		catalog:  NewCatalog(opts),
		mem:      NewMemory(),
		reporter: reporter,
		log:      opts.Logger,
	}
}

// Catalog - the declarations behind Declare and Call
func (h *Handler) Catalog() *Catalog { return h.catalog }
// Memory - the raw memory accessor behind the buffer operations
func (h *Handler) Memory() *Memory   { return h.mem }

func (h *Handler) fail(location string, err error) error {
	report(h.reporter, location, err)
	return err
}

// Declare declares symbol from library. sig is the optional return type
// (void when absent) followed by the argument types.
func (h *Handler) Declare(library, symbol string, sig ...TypeID) (FunctionID, error) {
	ret := Void
	var args []TypeID
	if len(sig) > 0 {
		ret, args = sig[0], sig[1:]
	}
	id, err := h.catalog.Declare(library, symbol, ret, args...)
	if err != nil {
		return 0, h.fail("Declare", err)
	}
	return id, nil
}

// Call invokes a declared function. targets[0] receives the return value,
// targets[1:] are the arguments and receive their values after the call.
func (h *Handler) Call(id FunctionID, targets ...Arg) (bool, error) {
	if err := h.catalog.Call(id, targets...); err != nil {
		return false, h.fail("Call", err)
	}
	return true, nil
}

// ListAll describes every declaration in id order.
func (h *Handler) ListAll() []FunctionInfo {
	return h.catalog.Functions()
}

// GetTypeSize returns the native size of t; 0 for void and unknown types.
func (h *Handler) GetTypeSize(t TypeID) (uint, error) {
	if t == Void {
		return 0, nil
	}
	d, err := Describe(t)
	if err != nil {
		return 0, h.fail("GetTypeSize", err)
	}
	return uint(d.Size), nil
}

// GetTypeName returns the constant name of t; "" for sentinels and out-of-range values.
func (h *Handler) GetTypeName(t TypeID) (string, error) {
	if t < 0 || t >= maxType {
		return "", h.fail("GetTypeName", newError(OutOfRange, "typename", "type %d outside [0, %d)", int(t), int(maxType)))
	}
	return TypeName(t), nil
}

// Allocate - n bytes of C heap, zero-filled when zero is set
func (h *Handler) Allocate(n uint64, zero bool) (uintptr, error) {
	p, err := h.mem.Allocate(n, zero)
	if err != nil {
		return 0, h.fail("Allocate", err)
	}
	return p, nil
}

// Release - frees memory from Allocate; 0 is ignored
func (h *Handler) Release(addr uintptr) {
	h.mem.Release(addr)
}

// BufferToString reads a NUL-terminated string, or exactly length bytes
// when a length is given.
func (h *Handler) BufferToString(addr uintptr, length ...int) (string, error) {
	var (
		s   string
		err error
	)
	if len(length) > 0 {
		s, err = h.mem.ReadStringN(addr, length[0])
	} else {
		s, err = h.mem.ReadString(addr)
	}
	if err != nil {
		return "", h.fail("BufferToString", err)
	}
	return s, nil
}

// BufferToStruct - reads packed fields starting at addr
func (h *Handler) BufferToStruct(addr uintptr, fields []TypeID) ([]any, error) {
	vs, err := h.mem.ReadStruct(addr, fields)
	if err != nil {
		return nil, h.fail("BufferToStruct", err)
	}
	return vs, nil
}

// BufferToArray - reads count items of one type starting at addr
func (h *Handler) BufferToArray(addr uintptr, item TypeID, count int) ([]any, error) {
	vs, err := h.mem.ReadArray(addr, item, count)
	if err != nil {
		return nil, h.fail("BufferToArray", err)
	}
	return vs, nil
}

// FillBufferWithString - writes s and a terminating NUL at addr
func (h *Handler) FillBufferWithString(addr uintptr, s string) error {
	if err := h.mem.WriteString(addr, s); err != nil {
		return h.fail("FillBufferWithString", err)
	}
	return nil
}

// FillBufferWithStruct - writes values as packed fields starting at addr
func (h *Handler) FillBufferWithStruct(addr uintptr, fields []TypeID, values []any) error {
	if err := h.mem.WriteStruct(addr, fields, values); err != nil {
		return h.fail("FillBufferWithStruct", err)
	}
	return nil
}

// FillBufferWithArray - writes values as consecutive items of one type
func (h *Handler) FillBufferWithArray(addr uintptr, item TypeID, values []any) error {
	if err := h.mem.WriteArray(addr, item, values); err != nil {
		return h.fail("FillBufferWithArray", err)
	}
	return nil
}

// ReadFromPointer - reads one value of type t at addr
func (h *Handler) ReadFromPointer(addr uintptr, t TypeID) (any, error) {
	v, err := h.mem.ReadAt(addr, t)
	if err != nil {
		return nil, h.fail("ReadFromPointer", err)
	}
	return v, nil
}

// WriteToPointer - writes one value of type t at addr
func (h *Handler) WriteToPointer(addr uintptr, t TypeID, v any) error {
	if err := h.mem.WriteAt(addr, t, v); err != nil {
		return h.fail("WriteToPointer", err)
	}
	return nil
}
