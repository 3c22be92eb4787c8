package ctrlffi

//
// CONSTANTS
//

const typePrefix = "FFI_"

// names exposed to host scripts, indexed by TypeID. sentinels stay empty.
var typeNames = [maxType]string{
	UChar:  "FFI_UCHAR",
	Char:   "FFI_CHAR",
	UShort: "FFI_USHORT",
	Short:  "FFI_SHORT",
	UInt:   "FFI_UINT",
	Int:    "FFI_INT",
	ULong:  "FFI_ULONG",
	Long:   "FFI_LONG",
	Float:  "FFI_FLOAT",
	Double: "FFI_DOUBLE",

	UInt8:  "FFI_UINT8",
	Int8:   "FFI_INT8",
	UInt16: "FFI_UINT16",
	Int16:  "FFI_INT16",
	UInt32: "FFI_UINT32",
	Int32:  "FFI_INT32",
	UInt64: "FFI_UINT64",
	Int64:  "FFI_INT64",

	UCharPtr:  "FFI_UCHAR_PTR",
	CharPtr:   "FFI_CHAR_PTR",
	UShortPtr: "FFI_USHORT_PTR",
	ShortPtr:  "FFI_SHORT_PTR",
	UIntPtr:   "FFI_UINT_PTR",
	IntPtr:    "FFI_INT_PTR",
	ULongPtr:  "FFI_ULONG_PTR",
	LongPtr:   "FFI_LONG_PTR",
	FloatPtr:  "FFI_FLOAT_PTR",
	DoublePtr: "FFI_DOUBLE_PTR",

	UInt8Ptr:  "FFI_UINT8_PTR",
	Int8Ptr:   "FFI_INT8_PTR",
	UInt16Ptr: "FFI_UINT16_PTR",
	Int16Ptr:  "FFI_INT16_PTR",
	UInt32Ptr: "FFI_UINT32_PTR",
	Int32Ptr:  "FFI_INT32_PTR",
	UInt64Ptr: "FFI_UINT64_PTR",
	Int64Ptr:  "FFI_INT64_PTR",

	Pointer: "FFI_POINTER",
	Void:    "FFI_VOID",
	String:  "FFI_STRING",
}

var typesByName = func() map[string]TypeID {
	m := make(map[string]TypeID, len(typeNames))
	for i, n := range typeNames {
		if n != "" {
			m[n] = TypeID(i)
		}
	}
	return m
}()

// slotSize is the C heap reserved per marshalled value: one word-aligned
// 8 byte cell for the value and one for the pointer-band indirection.
const slotSize = 16

// cifSize over-allocates ffi_cif, whose layout differs between architectures.
const cifSize = 128

// default libffi locations, tried in order when no paths are configured.
var defaultLibFFIPaths = []string{
	"libffi.so.8",
	"libffi.so.7",
	"libffi.so.6",
	"libffi.so",
	"/usr/lib/x86_64-linux-gnu/libffi.so.8",
	"/usr/lib/aarch64-linux-gnu/libffi.so.8",
	"/usr/lib64/libffi.so.8",
	"/usr/lib/libffi.so.8",
	"/usr/local/lib/libffi.so.8",
	"/usr/local/lib/libffi.so",
	"/usr/pkg/lib/libffi.so",
	"/usr/lib/libffi.dylib",
	"/opt/homebrew/opt/libffi/lib/libffi.dylib",
	"/usr/local/opt/libffi/lib/libffi.dylib",
}
