package ctrlffi

import (
	"unsafe"
)

// Memory reads and writes native memory at caller-supplied addresses.
// Nothing is checked beyond null: a bad address crashes the process.
type Memory struct {
	heap nativeHeap
}

// NewMemory - a Memory allocating from the C heap
func NewMemory() *Memory {
	return &Memory{heap: cHeap}
}

// addrPtr turns a native address into a pointer Go does not manage.
func addrPtr(addr uintptr) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&addr))
}

// cursor walks a (base, offset) pair across packed fields.
type cursor struct {
	base unsafe.Pointer
	off  uintptr
}

func (c *cursor) at() unsafe.Pointer { return unsafe.Add(c.base, c.off) }
func (c *cursor) advance(n uintptr) { c.off += n }

// Allocate returns n bytes of C heap, zeroed when zero is set.
func (m *Memory) Allocate(n uint64, zero bool) (uintptr, error) {
	if n == 0 {
		return 0, newError(InvalidArgument, "alloc", "size must be positive")
	}
	p := m.heap.alloc(uintptr(n), zero)
	if p == nil {
		return 0, newError(UnsupportedOperation, "alloc", "cannot allocate %d bytes", n)
	}
	return uintptr(p), nil
}

// Release frees memory from Allocate. 0 is ignored; double frees are not detected.
func (m *Memory) Release(addr uintptr) {
	if addr == 0 {
		return
	}
	m.heap.free(addrPtr(addr))
}

// ReadString copies the NUL-terminated text at addr.
func (m *Memory) ReadString(addr uintptr) (string, error) {
	if addr == 0 {
		return "", newError(InvalidArgument, "readstring", "null address")
	}
	return cString(addrPtr(addr)), nil
}

// ReadStringN copies exactly n bytes, embedded NULs included.
func (m *Memory) ReadStringN(addr uintptr, n int) (string, error) {
	if n < 0 {
		return "", newError(InvalidArgument, "readstring", "negative length %d", n)
	}
	if addr == 0 {
		return "", newError(InvalidArgument, "readstring", "null address")
	}
	if n == 0 {
		return "", nil
	}
	return string(unsafe.Slice((*byte)(addrPtr(addr)), n)), nil
}

// WriteString stores the bytes of s followed by a NUL.
func (m *Memory) WriteString(addr uintptr, s string) error {
	if addr == 0 {
		return newError(InvalidArgument, "writestring", "null address")
	}
	p := addrPtr(addr)
	copy(unsafe.Slice((*byte)(p), len(s)), s)
	*(*byte)(unsafe.Add(p, len(s))) = 0
	return nil
}

// layout describes every type up front so a bad field fails before any
// memory is touched.
func layout(op string, types []TypeID) ([]TypeDescriptor, error) {
	ds := make([]TypeDescriptor, len(types))
	for i, t := range types {
		d, err := Describe(t)
		if err != nil {
			return nil, wrapError(NotFound, op, err, "field %d", i+1)
		}
		if d.Category == VoidCategory {
			return nil, newError(UnsupportedOperation, op, "field %d is void", i+1)
		}
		ds[i] = d
	}
	return ds, nil
}

// ReadStruct reads packed fields starting at addr. No padding is inserted.
func (m *Memory) ReadStruct(addr uintptr, fields []TypeID) ([]any, error) {
	ds, err := layout("readstruct", fields)
	if err != nil {
		return nil, err
	}
	return m.read("readstruct", addr, ds)
}

// WriteStruct writes packed fields starting at addr. A value that fails to
// convert stops the walk; earlier fields stay written.
func (m *Memory) WriteStruct(addr uintptr, fields []TypeID, values []any) error {
	if len(fields) != len(values) {
		return newError(InvalidArgument, "writestruct", "%d field types but %d values", len(fields), len(values))
	}
	ds, err := layout("writestruct", fields)
	if err != nil {
		return err
	}
	return m.write("writestruct", addr, ds, values)
}

// ReadArray reads count items of one type starting at addr.
func (m *Memory) ReadArray(addr uintptr, item TypeID, count int) ([]any, error) {
	if count < 0 {
		return nil, newError(InvalidArgument, "readarray", "negative count %d", count)
	}
	d, err := layout("readarray", []TypeID{item})
	if err != nil {
		return nil, err
	}
	ds := make([]TypeDescriptor, count)
	for i := range ds {
		ds[i] = d[0]
	}
	return m.read("readarray", addr, ds)
}

// WriteArray writes values as consecutive items of one type.
func (m *Memory) WriteArray(addr uintptr, item TypeID, values []any) error {
	d, err := layout("writearray", []TypeID{item})
	if err != nil {
		return err
	}
	ds := make([]TypeDescriptor, len(values))
	for i := range ds {
		ds[i] = d[0]
	}
	return m.write("writearray", addr, ds, values)
}

// ReadAt reads a single value of type t.
func (m *Memory) ReadAt(addr uintptr, t TypeID) (any, error) {
	vs, err := m.ReadStruct(addr, []TypeID{t})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

// WriteAt writes a single value of type t.
func (m *Memory) WriteAt(addr uintptr, t TypeID, v any) error {
	return m.WriteStruct(addr, []TypeID{t}, []any{v})
}

func (m *Memory) read(op string, addr uintptr, ds []TypeDescriptor) ([]any, error) {
	out := make([]any, 0, len(ds))
	if len(ds) == 0 {
		return out, nil
	}
	if addr == 0 {
		return nil, newError(InvalidArgument, op, "null address")
	}
	c := cursor{base: addrPtr(addr)}
	for _, d := range ds {
		v, err := strategyFor(d).readAt(d, c.at())
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		c.advance(d.Size)
	}
	return out, nil
}

func (m *Memory) write(op string, addr uintptr, ds []TypeDescriptor, values []any) error {
	if len(ds) == 0 {
		return nil
	}
	if addr == 0 {
		return newError(InvalidArgument, op, "null address")
	}
	for i, d := range ds {
		if d.Category == StringCategory {
			return newError(UnsupportedOperation, op, "field %d: strings cannot be written in place", i+1)
		}
	}
	c := cursor{base: addrPtr(addr)}
	for i, d := range ds {
		if err := strategyFor(d).writeAt(d, c.at(), values[i]); err != nil {
			return wrapError(KindOf(err), op, err, "field %d", i+1)
		}
		c.advance(d.Size)
	}
	return nil
}
