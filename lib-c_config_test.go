package ctrlffi

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
log:
  level: debug
  format: json
libffi:
  paths: [/opt/lib/libffi.so.8]
  abi: 2
declare:
  - library: libm
    symbol: frexp
    returns: FFI_DOUBLE
    args: [double, FFI_INT_PTR]
  - library: libc
    symbol: touch
`

func TestParseConfig(t *testing.T) {
	c, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, LogConfig{Level: "debug", Format: "json"}, c.Log)
	assert.Equal(t, []string{"/opt/lib/libffi.so.8"}, c.LibFFI.Paths)
	require.Len(t, c.Declare, 2)

	ret, args, err := c.Declare[0].Signature()
	require.NoError(t, err)
	assert.Equal(t, Double, ret)
	assert.Equal(t, []TypeID{Double, IntPtr}, args)

	ret, args, err = c.Declare[1].Signature()
	require.NoError(t, err)
	assert.Equal(t, Void, ret)
	assert.Empty(t, args)

	opts := c.Options(discard)
	assert.Equal(t, 2, opts.ABI)
	assert.Equal(t, c.LibFFI.Paths, opts.LibFFIPaths)
	assert.Same(t, discard, opts.Logger)
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "log: [unclosed"},
		{"bad level", "log: {level: loud}"},
		{"bad format", "log: {format: xml}"},
		{"negative abi", "libffi: {abi: -1}"},
		{"empty path", "libffi: {paths: ['']}"},
		{"missing symbol", "declare: [{library: libc}]"},
		{"missing library", "declare: [{symbol: abs}]"},
		{"unknown return", "declare: [{library: libc, symbol: abs, returns: FFI_LONGLONG}]"},
		{"unknown argument", "declare: [{library: libc, symbol: abs, args: [int, bogus]}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			require.Error(t, err)
			assert.Equal(t, InvalidArgument, KindOf(err))
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ffi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, c.Declare, 2)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Equal(t, NotFound, KindOf(err))
}

func TestConfigSchema(t *testing.T) {
	data, err := ConfigSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok, string(data))
	assert.Contains(t, props, "declare")
	assert.Contains(t, props, "libffi")
	assert.Contains(t, string(data), `"library"`)
	assert.Contains(t, string(data), `"symbol"`)
}

func TestDeclareManifest(t *testing.T) {
	h, _, rep := newTestHandler(t)

	ids, err := h.DeclareManifest([]Declaration{
		{Library: "libc", Symbol: "abs", Returns: "int", Args: []string{"int"}},
		{Library: "libc", Symbol: "touch"},
	})
	require.NoError(t, err)
	assert.Equal(t, []FunctionID{1, 2}, ids)
	assert.Empty(t, rep.reports)
}

func TestDeclareManifest_StopsAtFirstFailure(t *testing.T) {
	h, _, rep := newTestHandler(t)

	ids, err := h.DeclareManifest([]Declaration{
		{Library: "libc", Symbol: "abs", Returns: "int", Args: []string{"int"}},
		{Library: "libc", Symbol: "missing"},
		{Library: "libc", Symbol: "touch"},
	})
	require.Error(t, err)
	assert.Equal(t, NotFound, KindOf(err))
	assert.Equal(t, []FunctionID{1}, ids)
	assert.Equal(t, 1, h.Catalog().Len())
	require.Len(t, rep.reports, 1)
	assert.Equal(t, "Declare", rep.reports[0].location)

	ids, err = h.DeclareManifest([]Declaration{{Library: "libc", Symbol: "abs", Returns: "nope"}})
	assert.Empty(t, ids)
	assert.Equal(t, NotFound, KindOf(err))
	assert.Equal(t, "DeclareManifest", rep.reports[1].location)
}
