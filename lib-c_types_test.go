package ctrlffi

import (
	"errors"
	"strings"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeID_NumericValues(t *testing.T) {
	tests := []struct {
		id   TypeID
		want int
	}{
		{firstValueType, 0},
		{UChar, 1},
		{Double, 10},
		{UInt8, 11},
		{Int64, 18},
		{lastValueType, 19},
		{firstPtr, 20},
		{UCharPtr, 21},
		{Int64Ptr, 38},
		{lastPtr, 39},
		{Pointer, 40},
		{Void, 41},
		{String, 42},
		{maxType, 43},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, int(tt.id), tt.id.String())
	}
}

func TestPointerVariantMirrorsScalar(t *testing.T) {
	for id := firstValueType + 1; id < lastValueType; id++ {
		p := id + ptrOffset
		require.True(t, p.IsPointer(), "%s", p)
		assert.Equal(t, TypeName(id)+"_PTR", TypeName(p))

		d, err := Describe(p)
		require.NoError(t, err)
		assert.Equal(t, PointerToScalar, d.Category)
		assert.Equal(t, id, d.Elem)
		assert.Equal(t, pointerSize, d.Size)
	}
}

func TestDescribe_Sentinels(t *testing.T) {
	for _, id := range []TypeID{-1, firstValueType, lastValueType, firstPtr, lastPtr, maxType, 99} {
		_, err := Describe(id)
		require.Error(t, err, "type %d", int(id))
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.Equal(t, Invalid, CategoryOf(id))
		assert.Zero(t, SizeOf(id))
		assert.False(t, id.Valid())
	}
}

func TestSizeOf(t *testing.T) {
	tests := []struct {
		id   TypeID
		want uintptr
	}{
		{UChar, 1},
		{Char, 1},
		{UShort, 2},
		{Short, 2},
		{UInt, 4},
		{Int, 4},
		{ULong, unsafe.Sizeof(uintptr(0))},
		{Long, unsafe.Sizeof(uintptr(0))},
		{Float, 4},
		{Double, 8},
		{UInt8, 1},
		{Int16, 2},
		{UInt32, 4},
		{Int64, 8},
		{IntPtr, unsafe.Sizeof(uintptr(0))},
		{Pointer, unsafe.Sizeof(uintptr(0))},
		{String, unsafe.Sizeof(uintptr(0))},
		{Void, 0},
	}
	for _, tt := range tests {
		t.Run(tt.id.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, SizeOf(tt.id))
		})
	}
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, Scalar, CategoryOf(Int))
	assert.Equal(t, Scalar, CategoryOf(Double))
	assert.Equal(t, PointerToScalar, CategoryOf(DoublePtr))
	assert.Equal(t, RawPointer, CategoryOf(Pointer))
	assert.Equal(t, VoidCategory, CategoryOf(Void))
	assert.Equal(t, StringCategory, CategoryOf(String))
	assert.Equal(t, "pointer-to-scalar", PointerToScalar.String())
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "FFI_UCHAR", TypeName(UChar))
	assert.Equal(t, "FFI_INT64_PTR", TypeName(Int64Ptr))
	assert.Equal(t, "FFI_STRING", TypeName(String))
	assert.Equal(t, "", TypeName(firstValueType))
	assert.Equal(t, "", TypeName(lastPtr))
	assert.Equal(t, "", TypeName(-1))
	assert.Equal(t, "", TypeName(maxType))
	assert.Equal(t, "TypeID(99)", TypeID(99).String())
}

func TestTypeByName(t *testing.T) {
	tests := []struct {
		in      string
		want    TypeID
		wantErr bool
	}{
		{"FFI_INT", Int, false},
		{"int", Int, false},
		{" uint8 ", UInt8, false},
		{"double_ptr", DoublePtr, false},
		{"FFI_VOID", Void, false},
		{"42", String, false},
		{"0", 0, true},
		{"19", 0, true},
		{"FFI_BOGUS", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := TypeByName(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, NotFound, KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTypeConstants(t *testing.T) {
	consts := TypeConstants()
	assert.Len(t, consts, 18*2+3)
	for name, id := range consts {
		assert.True(t, strings.HasPrefix(name, typePrefix))
		assert.Equal(t, name, TypeName(id))
	}

	consts["FFI_INT"] = 0
	assert.Equal(t, Int, TypeConstants()["FFI_INT"])
}

func TestRegistry_LibFFISymbols(t *testing.T) {
	for id := TypeID(0); id < maxType; id++ {
		d := registry[id]
		if d.Category == Invalid {
			continue
		}
		assert.NotEmpty(t, d.ffiSymbol, d.Name)
	}
	assert.Equal(t, "ffi_type_sint32", registry[Int].ffiSymbol)
	assert.Equal(t, "ffi_type_pointer", registry[IntPtr].ffiSymbol)
	assert.Equal(t, "ffi_type_void", registry[Void].ffiSymbol)
	assert.True(t, registry[Char].Signed())
	assert.False(t, registry[UChar].Signed())
	assert.True(t, registry[FloatPtr].Floating())
}
