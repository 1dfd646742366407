package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// addModuleBytes hand-encodes a module exporting "add" of type
// (i32,i32)->i32, the same fixture shape used across this repo's other
// binary-level tests.
func addModuleBytes() []byte {
	var b bytes.Buffer
	b.Write([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})

	typeSection := []byte{0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f}
	b.WriteByte(1)
	b.WriteByte(byte(len(typeSection)))
	b.Write(typeSection)

	funcSection := []byte{0x01, 0x00}
	b.WriteByte(3)
	b.WriteByte(byte(len(funcSection)))
	b.Write(funcSection)

	exportSection := []byte{0x01, 0x03, 'a', 'd', 'd', 0x00, 0x00}
	b.WriteByte(7)
	b.WriteByte(byte(len(exportSection)))
	b.Write(exportSection)

	body := []byte{0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b}
	codeSection := append([]byte{0x01, byte(len(body))}, body...)
	b.WriteByte(10)
	b.WriteByte(byte(len(codeSection)))
	b.Write(codeSection)

	return b.Bytes()
}

func writeModule(t *testing.T, dir string, wasmBytes []byte) string {
	t.Helper()
	path := filepath.Join(dir, "module.wasm")
	require.NoError(t, os.WriteFile(path, wasmBytes, 0o600))
	return path
}

func TestRunCompile_Success(t *testing.T) {
	path := writeModule(t, t.TempDir(), addModuleBytes())

	var out bytes.Buffer
	err := runCompile(context.Background(), path, &compileParams{}, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "compiled OK")
	require.Contains(t, out.String(), "functions: 1")
}

func TestRunCompile_MissingFile(t *testing.T) {
	var out bytes.Buffer
	err := runCompile(context.Background(), filepath.Join(t.TempDir(), "does-not-exist.wasm"), &compileParams{}, &out)
	require.Error(t, err)
}

func TestRunCompile_InvalidWasm(t *testing.T) {
	path := writeModule(t, t.TempDir(), []byte("not a wasm module"))

	var out bytes.Buffer
	err := runCompile(context.Background(), path, &compileParams{}, &out)
	require.Error(t, err)
}

func TestRunCompile_WithFileCache(t *testing.T) {
	cacheDir := filepath.Join(t.TempDir(), "cache")
	path := writeModule(t, t.TempDir(), addModuleBytes())

	var out bytes.Buffer
	err := runCompile(context.Background(), path, &compileParams{cacheDir: cacheDir}, &out)
	require.NoError(t, err)

	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries, "compiling with --cache-dir must populate the directory")
}

func TestNewRuntimeConfig_BadCacheDir(t *testing.T) {
	// A cache dir that collides with an existing regular file cannot be
	// created as a directory.
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	_, err := newRuntimeConfig(file, false)
	require.Error(t, err)
}
