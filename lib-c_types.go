package ctrlffi

import (
	"fmt"
	"strconv"
	"strings"
	"unsafe"
)

// TypeID identifies a native type understood by the marshaller.
// The numeric values are exposed to host scripts and must never be reordered.
type TypeID int

const (
	// non-fixed size types
	firstValueType TypeID = iota
	UChar
	Char
	UShort
	Short
	UInt
	Int
	ULong
	Long
	Float
	Double
	// fixed size types
	UInt8
	Int8
	UInt16
	Int16
	UInt32
	Int32
	UInt64
	Int64
	lastValueType

	// pointer types, mirrored from the value types above so that
	// t + ptrOffset is the pointer variant of scalar t.
	firstPtr
	UCharPtr
	CharPtr
	UShortPtr
	ShortPtr
	UIntPtr
	IntPtr
	ULongPtr
	LongPtr
	FloatPtr
	DoublePtr
	UInt8Ptr
	Int8Ptr
	UInt16Ptr
	Int16Ptr
	UInt32Ptr
	Int32Ptr
	UInt64Ptr
	Int64Ptr
	lastPtr

	// special types
	Pointer
	Void
	String

	maxType
)

const ptrOffset = firstPtr - firstValueType

// Category is the marshalling family a TypeID belongs to.
type Category int

const (
	Invalid Category = iota
	Scalar
	PointerToScalar
	RawPointer
	VoidCategory
	StringCategory
)

func (c Category) String() string {
	switch c {
	case Scalar:
		return "scalar"
	case PointerToScalar:
		return "pointer-to-scalar"
	case RawPointer:
		return "raw-pointer"
	case VoidCategory:
		return "void"
	case StringCategory:
		return "string"
	}
	return "invalid"
}

// scalarKind is the exact native representation of a scalar slot.
type scalarKind int

const (
	kindNone scalarKind = iota
	kindU8
	kindI8
	kindU16
	kindI16
	kindU32
	kindI32
	kindU64
	kindI64
	kindF32
	kindF64
)

// TypeDescriptor is the immutable description of one TypeID.
type TypeDescriptor struct {
	ID       TypeID
	Name     string
	Size     uintptr
	Category Category
	// Elem is the pointee scalar for pointer-band types, otherwise ID.
	Elem TypeID

	kind      scalarKind
	ffiSymbol string
}

// Signed reports whether the scalar (or pointee) is a signed integer.
func (d TypeDescriptor) Signed() bool {
	switch d.kind {
	case kindI8, kindI16, kindI32, kindI64:
		return true
	}
	return false
}

// Floating reports whether the scalar (or pointee) is float or double.
func (d TypeDescriptor) Floating() bool {
	return d.kind == kindF32 || d.kind == kindF64
}

var pointerSize = unsafe.Sizeof(uintptr(0))

// C long follows the pointer width on the LP64 and ILP32 Unix targets we load libffi on.
var longKind = map[uintptr][2]scalarKind{
	4: {kindU32, kindI32},
	8: {kindU64, kindI64},
}[pointerSize]

var registry = buildRegistry()

func buildRegistry() [maxType]TypeDescriptor {
	var r [maxType]TypeDescriptor

	scalars := []struct {
		id   TypeID
		kind scalarKind
	}{
		{UChar, kindU8},
		{Char, kindI8},
		{UShort, kindU16},
		{Short, kindI16},
		{UInt, kindU32},
		{Int, kindI32},
		{ULong, longKind[0]},
		{Long, longKind[1]},
		{Float, kindF32},
		{Double, kindF64},
		{UInt8, kindU8},
		{Int8, kindI8},
		{UInt16, kindU16},
		{Int16, kindI16},
		{UInt32, kindU32},
		{Int32, kindI32},
		{UInt64, kindU64},
		{Int64, kindI64},
	}

	for _, s := range scalars {
		r[s.id] = TypeDescriptor{
			ID:        s.id,
			Name:      typeNames[s.id],
			Size:      kindSize(s.kind),
			Category:  Scalar,
			Elem:      s.id,
			kind:      s.kind,
			ffiSymbol: kindSymbol(s.kind),
		}
		p := s.id + ptrOffset
		r[p] = TypeDescriptor{
			ID:        p,
			Name:      typeNames[p],
			Size:      pointerSize,
			Category:  PointerToScalar,
			Elem:      s.id,
			kind:      s.kind,
			ffiSymbol: "ffi_type_pointer",
		}
	}

	r[Pointer] = TypeDescriptor{ID: Pointer, Name: typeNames[Pointer], Size: pointerSize, Category: RawPointer, Elem: Pointer, ffiSymbol: "ffi_type_pointer"}
	r[String] = TypeDescriptor{ID: String, Name: typeNames[String], Size: pointerSize, Category: StringCategory, Elem: String, ffiSymbol: "ffi_type_pointer"}
	// ffi_type_void has size 1, but 0 seems more sensible
	r[Void] = TypeDescriptor{ID: Void, Name: typeNames[Void], Size: 0, Category: VoidCategory, Elem: Void, ffiSymbol: "ffi_type_void"}

	return r
}

func kindSize(k scalarKind) uintptr {
	switch k {
	case kindU8, kindI8:
		return 1
	case kindU16, kindI16:
		return 2
	case kindU32, kindI32, kindF32:
		return 4
	case kindU64, kindI64, kindF64:
		return 8
	}
	return 0
}

// kindSymbol names the exported libffi type descriptor. ffi_type_uchar and
// friends are only macros in ffi.h, so everything maps onto the fixed-width symbols.
func kindSymbol(k scalarKind) string {
	switch k {
	case kindU8:
		return "ffi_type_uint8"
	case kindI8:
		return "ffi_type_sint8"
	case kindU16:
		return "ffi_type_uint16"
	case kindI16:
		return "ffi_type_sint16"
	case kindU32:
		return "ffi_type_uint32"
	case kindI32:
		return "ffi_type_sint32"
	case kindU64:
		return "ffi_type_uint64"
	case kindI64:
		return "ffi_type_sint64"
	case kindF32:
		return "ffi_type_float"
	case kindF64:
		return "ffi_type_double"
	}
	return ""
}

// Valid reports whether t is a real type and not a band sentinel.
func (t TypeID) Valid() bool {
	return t > firstValueType && t < maxType && registry[t].Category != Invalid
}

// IsPointer reports whether t lies in the pointer-to-scalar band.
func (t TypeID) IsPointer() bool {
	return t > firstPtr && t < lastPtr
}

func (t TypeID) String() string {
	if n := TypeName(t); n != "" {
		return n
	}
	return fmt.Sprintf("TypeID(%d)", int(t))
}

// Describe returns the descriptor for t, or a NotFound error for sentinels
// and values outside the enumeration.
func Describe(t TypeID) (TypeDescriptor, error) {
	if !t.Valid() {
		return TypeDescriptor{}, newError(NotFound, "describe", "unknown type %d", int(t))
	}
	return registry[t], nil
}

// CategoryOf returns Invalid for anything Describe would reject.
func CategoryOf(t TypeID) Category {
	if !t.Valid() {
		return Invalid
	}
	return registry[t].Category
}

// SizeOf returns the native byte size of t, 0 for void and unknown types.
func SizeOf(t TypeID) uintptr {
	if !t.Valid() {
		return 0
	}
	return registry[t].Size
}

// TypeName returns the exported constant name of t, or "" when t is not a named type.
func TypeName(t TypeID) string {
	if t < 0 || t >= maxType {
		return ""
	}
	return typeNames[t]
}

// TypeByName resolves "FFI_UINT32", "uint32" or a decimal id.
func TypeByName(s string) (TypeID, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(name, typePrefix) {
		name = typePrefix + name
	}
	if t, ok := typesByName[name]; ok {
		return t, nil
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && TypeID(n).Valid() {
		return TypeID(n), nil
	}
	return 0, newError(NotFound, "typebyname", "unknown type %q", s)
}

// TypeConstants returns every named type, keyed by its constant name.
// The returned map is a copy.
func TypeConstants() map[string]TypeID {
	m := make(map[string]TypeID, len(typesByName))
	for k, v := range typesByName {
		m[k] = v
	}
	return m
}
