package engine_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmrt/wasmrt/internal/engine"
	"github.com/wasmrt/wasmrt/internal/wasm"
)

func TestSerializeDeserializeArtifact_RoundTrip(t *testing.T) {
	wasmBytes := addModuleBytes()
	fp := engine.NewFingerprint(wasmBytes, "interpreter", wasm.Features20191205)
	hash := engine.NewModuleHash(wasmBytes)

	var buf bytes.Buffer
	require.NoError(t, engine.SerializeArtifact(fp, hash, "interpreter", wasmBytes, &buf))

	gotFP, gotHash, gotBackend, gotBytes, err := engine.DeserializeArtifact(&buf)
	require.NoError(t, err)
	require.Equal(t, fp, gotFP)
	require.Equal(t, hash, gotHash)
	require.Equal(t, "interpreter", gotBackend)
	require.Equal(t, wasmBytes, gotBytes)
}

func TestDeserializeArtifact_BadMagic(t *testing.T) {
	_, _, _, _, err := engine.DeserializeArtifact(bytes.NewReader([]byte("WRONG\x01\x00\x00\x00")))
	require.Error(t, err)
}

func TestDeserializeArtifact_BadVersion(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("WASMR")
	buf.Write([]byte{0x99, 0x00, 0x00, 0x00}) // version 153
	_, _, _, _, err := engine.DeserializeArtifact(&buf)
	require.Error(t, err)
}

func TestNewModuleHash_CanonicalStringForm(t *testing.T) {
	h := engine.NewModuleHash([]byte("hello"))
	require.Contains(t, string(h), "sha256:")
}
