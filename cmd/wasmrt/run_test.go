package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// startModuleBytes hand-encodes a module whose "_start" export is a no-op,
// exercising the default start-function invocation path.
func startModuleBytes() []byte {
	var b bytes.Buffer
	b.Write([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})

	typeSection := []byte{0x01, 0x60, 0x00, 0x00}
	b.WriteByte(1)
	b.WriteByte(byte(len(typeSection)))
	b.Write(typeSection)

	funcSection := []byte{0x01, 0x00}
	b.WriteByte(3)
	b.WriteByte(byte(len(funcSection)))
	b.Write(funcSection)

	exportSection := []byte{0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00}
	b.WriteByte(7)
	b.WriteByte(byte(len(exportSection)))
	b.Write(exportSection)

	body := []byte{0x00, 0x0b}
	codeSection := append([]byte{0x01, byte(len(body))}, body...)
	b.WriteByte(10)
	b.WriteByte(byte(len(codeSection)))
	b.Write(codeSection)

	return b.Bytes()
}

func TestRunRun_Success(t *testing.T) {
	path := writeModule(t, t.TempDir(), startModuleBytes())

	var out bytes.Buffer
	exitCode, err := runRun(context.Background(), path, &runParams{start: []string{"_start"}}, &out)
	require.NoError(t, err)
	require.Equal(t, uint32(0), exitCode)
	require.Contains(t, out.String(), "ran OK")
}

func TestRunRun_MissingFile(t *testing.T) {
	var out bytes.Buffer
	_, err := runRun(context.Background(), filepath.Join(t.TempDir(), "missing.wasm"), &runParams{}, &out)
	require.Error(t, err)
}

func TestRunRun_SkipsMissingStartFunction(t *testing.T) {
	path := writeModule(t, t.TempDir(), startModuleBytes())

	var out bytes.Buffer
	exitCode, err := runRun(context.Background(), path, &runParams{start: []string{"does_not_exist"}}, &out)
	require.NoError(t, err)
	require.Equal(t, uint32(0), exitCode)
}

func TestRunRun_WithWasix(t *testing.T) {
	path := writeModule(t, t.TempDir(), startModuleBytes())

	var out bytes.Buffer
	exitCode, err := runRun(context.Background(), path, &runParams{start: []string{"_start"}, wasix: true}, &out)
	require.NoError(t, err)
	require.Equal(t, uint32(0), exitCode)
}

func TestRunRun_CustomName(t *testing.T) {
	path := writeModule(t, t.TempDir(), startModuleBytes())

	var out bytes.Buffer
	exitCode, err := runRun(context.Background(), path, &runParams{start: []string{"_start"}, name: "myinstance"}, &out)
	require.NoError(t, err)
	require.Equal(t, uint32(0), exitCode)
}
