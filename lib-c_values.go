package ctrlffi

import (
	"unsafe"
)

// nativeHeap hands out memory that native code may keep pointers into.
type nativeHeap interface {
	alloc(n uintptr, zero bool) unsafe.Pointer
	free(p unsafe.Pointer)
}

// slot is the native storage for one value of one call. Each slot owns
// slotSize bytes: the value cell at mem and, for the pointer band, a second
// cell holding the address of the first.
type slot struct {
	desc TypeDescriptor
	mem  unsafe.Pointer
	heap nativeHeap

	text    unsafe.Pointer
	textLen int
}

func newSlot(desc TypeDescriptor, mem unsafe.Pointer, heap nativeHeap) *slot {
	return &slot{desc: desc, mem: mem, heap: heap}
}

func (s *slot) strategy() strategy { return strategyFor(s.desc) }

// set converts a host value into the slot.
func (s *slot) set(v any) error { return s.strategy().setValue(s, v) }

// get converts the slot back into a host value. ok is false for void.
func (s *slot) get() (v any, ok bool) { return s.strategy().getValue(s) }

// argPtr is the pointer placed into ffi_call's argument vector.
func (s *slot) argPtr() unsafe.Pointer { return s.strategy().argPtr(s) }

// release frees anything the slot owns besides its cells.
func (s *slot) release() {
	if s.text != nil {
		s.heap.free(s.text)
		s.text = nil
		s.textLen = 0
	}
}

// strategy converts between host values and one category of native storage.
type strategy interface {
	setValue(s *slot, v any) error
	getValue(s *slot) (any, bool)
	argPtr(s *slot) unsafe.Pointer
	writeAt(d TypeDescriptor, p unsafe.Pointer, v any) error
	readAt(d TypeDescriptor, p unsafe.Pointer) (any, error)
}

var strategies = [...]strategy{
	Invalid:         invalidValue{},
	Scalar:          scalarValue{},
	PointerToScalar: pointerToScalarValue{},
	RawPointer:      rawPointerValue{},
	VoidCategory:    voidValue{},
	StringCategory:  stringValue{},
}

func strategyFor(d TypeDescriptor) strategy {
	if int(d.Category) < 0 || int(d.Category) >= len(strategies) {
		return invalidValue{}
	}
	return strategies[d.Category]
}

//------------------------------------------------------------------------------

type scalarValue struct{}

func (scalarValue) setValue(s *slot, v any) error {
	return storeScalar(s.desc.kind, s.mem, v)
}

func (scalarValue) getValue(s *slot) (any, bool) {
	return loadScalar(s.desc.kind, s.mem), true
}

func (scalarValue) argPtr(s *slot) unsafe.Pointer { return s.mem }

func (scalarValue) writeAt(d TypeDescriptor, p unsafe.Pointer, v any) error {
	return storeScalar(d.kind, p, v)
}

func (scalarValue) readAt(d TypeDescriptor, p unsafe.Pointer) (any, error) {
	return loadScalar(d.kind, p), nil
}

//------------------------------------------------------------------------------

// pointerToScalarValue stores like a scalar, but the callee receives the
// address of the storage. Since libffi takes a pointer to every argument,
// the vector entry is a pointer to a cell holding that address.
//
// The callee may change the value behind the pointer, but must not free it
// or replace it.
type pointerToScalarValue struct{}

func (pointerToScalarValue) setValue(s *slot, v any) error {
	return storeScalar(s.desc.kind, s.mem, v)
}

func (pointerToScalarValue) getValue(s *slot) (any, bool) {
	return loadScalar(s.desc.kind, s.mem), true
}

func (pointerToScalarValue) argPtr(s *slot) unsafe.Pointer {
	cell := unsafe.Add(s.mem, slotSize/2)
	*(*unsafe.Pointer)(cell) = s.mem
	return cell
}

// In raw memory a pointer-band value is stored like its scalar; only the
// cursor step (d.Size) is pointer sized.
func (pointerToScalarValue) writeAt(d TypeDescriptor, p unsafe.Pointer, v any) error {
	return storeScalar(d.kind, p, v)
}

func (pointerToScalarValue) readAt(d TypeDescriptor, p unsafe.Pointer) (any, error) {
	return loadScalar(d.kind, p), nil
}

//------------------------------------------------------------------------------

// rawPointerValue is an address we do not own, carried as an unsigned integer.
type rawPointerValue struct{}

func (r rawPointerValue) setValue(s *slot, v any) error {
	return r.writeAt(s.desc, s.mem, v)
}

func (rawPointerValue) getValue(s *slot) (any, bool) {
	return uint64(*(*uintptr)(s.mem)), true
}

func (rawPointerValue) argPtr(s *slot) unsafe.Pointer { return s.mem }

func (rawPointerValue) writeAt(_ TypeDescriptor, p unsafe.Pointer, v any) error {
	u, err := toUint64(v)
	if err != nil {
		return err
	}
	*(*uintptr)(p) = uintptr(u)
	return nil
}

func (rawPointerValue) readAt(_ TypeDescriptor, p unsafe.Pointer) (any, error) {
	return uint64(*(*uintptr)(p)), nil
}

//------------------------------------------------------------------------------

// voidValue has no storage and converts nothing.
type voidValue struct{}

func (voidValue) setValue(*slot, any) error   { return nil }
func (voidValue) getValue(*slot) (any, bool)  { return nil, false }
func (voidValue) argPtr(*slot) unsafe.Pointer { return nil }

func (voidValue) writeAt(TypeDescriptor, unsafe.Pointer, any) error {
	return newError(UnsupportedOperation, "write", "void has no memory representation")
}

func (voidValue) readAt(TypeDescriptor, unsafe.Pointer) (any, error) {
	return nil, newError(UnsupportedOperation, "read", "void has no memory representation")
}

//------------------------------------------------------------------------------

// stringValue owns a NUL-terminated copy of the text and hands the callee
// its address. The callee must not free or reallocate it; a function
// returning a string (getenv) replaces the cell with its own pointer.
type stringValue struct{}

func (stringValue) setValue(s *slot, v any) error {
	text := toText(v)
	s.release()

	buf := s.heap.alloc(uintptr(len(text))+1, false)
	if buf == nil {
		return newError(UnsupportedOperation, "setvalue", "cannot allocate %d bytes for string", len(text)+1)
	}
	if len(text) > 0 {
		copy(unsafe.Slice((*byte)(buf), len(text)), text)
	}
	*(*byte)(unsafe.Add(buf, len(text))) = 0

	s.text = buf
	s.textLen = len(text)
	*(*unsafe.Pointer)(s.mem) = buf
	return nil
}

func (stringValue) getValue(s *slot) (any, bool) {
	p := *(*unsafe.Pointer)(s.mem)
	switch {
	case p == nil:
		return "", true
	case p == s.text:
		return boundedCString(p, s.textLen), true
	}
	return cString(p), true
}

func (stringValue) argPtr(s *slot) unsafe.Pointer { return s.mem }

func (stringValue) writeAt(TypeDescriptor, unsafe.Pointer, any) error {
	return newError(UnsupportedOperation, "write", "a string field has no owner for its copy; write a pointer instead")
}

func (stringValue) readAt(_ TypeDescriptor, p unsafe.Pointer) (any, error) {
	cell := *(*unsafe.Pointer)(p)
	if cell == nil {
		return "", nil
	}
	return cString(cell), nil
}

//------------------------------------------------------------------------------

type invalidValue struct{}

func (invalidValue) setValue(s *slot, _ any) error {
	return newError(NotFound, "setvalue", "unknown type %d", int(s.desc.ID))
}
func (invalidValue) getValue(*slot) (any, bool)  { return nil, false }
func (invalidValue) argPtr(*slot) unsafe.Pointer { return nil }

func (invalidValue) writeAt(d TypeDescriptor, _ unsafe.Pointer, _ any) error {
	return newError(NotFound, "write", "unknown type %d", int(d.ID))
}

func (invalidValue) readAt(d TypeDescriptor, _ unsafe.Pointer) (any, error) {
	return nil, newError(NotFound, "read", "unknown type %d", int(d.ID))
}

//------------------------------------------------------------------------------
// scalar encoding

func storeScalar(k scalarKind, p unsafe.Pointer, v any) error {
	switch k {
	case kindF32:
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		*(*float32)(p) = float32(f)
		return nil
	case kindF64:
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		*(*float64)(p) = f
		return nil
	case kindI8, kindI16, kindI32, kindI64:
		i, err := toInt64(v)
		if err != nil {
			return err
		}
		storeBits(k, p, uint64(i))
		return nil
	case kindU8, kindU16, kindU32, kindU64:
		u, err := toUint64(v)
		if err != nil {
			return err
		}
		storeBits(k, p, u)
		return nil
	}
	return newError(NotFound, "write", "not a scalar kind")
}

// storeBits truncates bits to the width of k.
func storeBits(k scalarKind, p unsafe.Pointer, bits uint64) {
	switch k {
	case kindU8, kindI8:
		*(*uint8)(p) = uint8(bits)
	case kindU16, kindI16:
		*(*uint16)(p) = uint16(bits)
	case kindU32, kindI32:
		*(*uint32)(p) = uint32(bits)
	case kindU64, kindI64:
		*(*uint64)(p) = bits
	case kindF32:
		*(*uint32)(p) = uint32(bits)
	case kindF64:
		*(*uint64)(p) = bits
	}
}

func loadScalar(k scalarKind, p unsafe.Pointer) any {
	switch k {
	case kindU8:
		return uint64(*(*uint8)(p))
	case kindI8:
		return int64(*(*int8)(p))
	case kindU16:
		return uint64(*(*uint16)(p))
	case kindI16:
		return int64(*(*int16)(p))
	case kindU32:
		return uint64(*(*uint32)(p))
	case kindI32:
		return int64(*(*int32)(p))
	case kindU64:
		return *(*uint64)(p)
	case kindI64:
		return *(*int64)(p)
	case kindF32:
		return float64(*(*float32)(p))
	case kindF64:
		return *(*float64)(p)
	}
	return nil
}

// narrowReturn fixes up integral returns narrower than ffi_arg: libffi
// writes the whole register word, so the low-order value is re-stored at
// the start of the cell where loadScalar expects it on any byte order.
func narrowReturn(s *slot) {
	if s.desc.Category != Scalar || s.desc.Floating() || s.desc.Size >= pointerSize {
		return
	}
	storeBits(s.desc.kind, s.mem, uint64(*(*uintptr)(s.mem)))
}

// boundedCString reads at most n bytes, stopping at the first NUL.
func boundedCString(p unsafe.Pointer, n int) string {
	if n <= 0 {
		return ""
	}
	b := unsafe.Slice((*byte)(p), n)
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
