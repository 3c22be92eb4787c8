//go:build linux && cgo && !noffi

package ctrlffi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nativeHandler declares against the real libc and libffi, skipping when
// libffi is not installed.
func nativeHandler(t *testing.T) *Handler {
	t.Helper()
	h := NewHandler(Options{Logger: discard}, &recordingReporter{})
	if _, err := h.Catalog().ffi(); err != nil {
		t.Skipf("libffi unavailable: %v", err)
	}
	return h
}

func TestNative_Abs(t *testing.T) {
	h := nativeHandler(t)
	id, err := h.Declare(libcPath, "abs", Int, Int)
	require.NoError(t, err)

	ret := &Var{}
	ok, err := h.Call(id, ret, Lit(-42))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), ret.V)
}

func TestNative_Strlen(t *testing.T) {
	h := nativeHandler(t)
	id, err := h.Declare(libcPath, "strlen", ULong, String)
	require.NoError(t, err)

	ret := &Var{}
	_, err = h.Call(id, ret, Lit("hello, world"))
	require.NoError(t, err)
	assert.Equal(t, uint64(12), ret.V)
}

func TestNative_Frexp(t *testing.T) {
	h := nativeHandler(t)
	id, err := h.Declare("libm.so.6", "frexp", Double, Double, IntPtr)
	if KindOf(err) == NotFound {
		t.Skip("no libm.so.6")
	}
	require.NoError(t, err)

	args := Vars(nil, 12.0, 0)
	_, err = h.Call(id, args...)
	require.NoError(t, err)
	assert.Equal(t, 0.75, args[0].Value())
	assert.Equal(t, int64(4), args[2].Value())
}

func TestNative_MemsetIntoAllocation(t *testing.T) {
	h := nativeHandler(t)
	id, err := h.Declare(libcPath, "memset", Pointer, Pointer, Int, ULong)
	require.NoError(t, err)

	p, err := h.Allocate(16, true)
	require.NoError(t, err)
	defer h.Release(p)

	ret := &Var{}
	_, err = h.Call(id, ret, Lit(uint64(p)), Lit('z'), Lit(5))
	require.NoError(t, err)
	assert.Equal(t, uint64(p), ret.V)

	s, err := h.BufferToString(p)
	require.NoError(t, err)
	assert.Equal(t, "zzzzz", s)
}

func TestNative_AllocateZeroFills(t *testing.T) {
	h := nativeHandler(t)
	const n = 256

	// dirty a block first so a reused chunk would show
	dirty, err := h.Allocate(n, false)
	require.NoError(t, err)
	ff := make([]any, n)
	for i := range ff {
		ff[i] = 0xFF
	}
	require.NoError(t, h.FillBufferWithArray(dirty, UInt8, ff))
	h.Release(dirty)

	p, err := h.Allocate(n, true)
	require.NoError(t, err)
	defer h.Release(p)

	got, err := h.BufferToArray(p, UInt8, n)
	require.NoError(t, err)
	require.Len(t, got, n)
	for i, v := range got {
		assert.Equal(t, uint64(0), v, "byte %d", i)
	}
}

func TestNative_EveryTypeBound(t *testing.T) {
	h := nativeHandler(t)
	f, err := h.Catalog().ffi()
	require.NoError(t, err)
	lib := f.(*libFFI)
	for _, d := range registry {
		if d.Category != Scalar {
			continue
		}
		addr := lib.types[d.ffiSymbol]
		require.NotZero(t, addr, d.Name)
	}
}
