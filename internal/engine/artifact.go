package engine

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	digest "github.com/opencontainers/go-digest"

	"github.com/wasmrt/wasmrt/internal/wasm"
)

// artifactMagic and artifactVersion tag the on-disk/in-memory wire format
// described in spec.md §6.2.
const (
	artifactMagic   = "WASMR"
	artifactVersion = 1
)

// Fingerprint identifies a (module bytes, compiler backend, feature set)
// triple. Two compilations of the same bytes with the same backend and
// features always produce the same Fingerprint, making it a safe cache key
// across process restarts.
type Fingerprint string

// NewFingerprint derives a Fingerprint from the raw module bytes plus the
// knobs that affect compilation output. xxhash gives a fast, well
// distributed 64-bit hash; it is not used anywhere security sensitive, only
// as a cache key, so collision resistance guarantees stronger than xxhash
// are not required.
func NewFingerprint(wasmBytes []byte, backend string, features wasm.Features) Fingerprint {
	h := xxhash.New()
	_, _ = h.Write(wasmBytes)
	_, _ = io.WriteString(h, backend)
	var fbuf [8]byte
	binary.LittleEndian.PutUint64(fbuf[:], uint64(features))
	_, _ = h.Write(fbuf[:])
	return Fingerprint(fmt.Sprintf("%016x", h.Sum64()))
}

// ModuleHash is a SHA-256 content digest of the raw module bytes, reported to
// embedders for module identity/dedup purposes distinct from the
// cache-oriented Fingerprint (spec.md §6.2). go-digest's canonical string
// form ("sha256:<hex>") matches the convention used by OCI-adjacent tooling
// in the rest of the dependency pack.
type ModuleHash string

// NewModuleHash digests the raw module bytes with SHA-256 via go-digest's
// canonicalizer.
func NewModuleHash(wasmBytes []byte) ModuleHash {
	return ModuleHash(digest.FromBytes(wasmBytes).String())
}

// Artifact is a compiled module: its executable functions plus the metadata
// needed to validate a cache hit and to report module identity.
type Artifact struct {
	Fingerprint Fingerprint
	ModuleHash  ModuleHash
	Backend     string
	Module      *wasm.ModuleInfo
	Functions   []CompiledFunction
}

// persisted is the on-disk encoding of an Artifact. A Compiler's
// CompiledFunctions are not themselves serializable (the interpreter
// backend's are closures over decoded instruction streams, not machine
// code), so the cache persists the original module bytes and re-runs
// decode+validate+compile on load; what the cache actually saves is the
// caller not needing to re-fetch or re-transmit the module bytes, and a
// future native-codegen Compiler could persist real machine code behind
// the same envelope without changing this format's magic/version.
type persisted struct {
	Fingerprint Fingerprint
	ModuleHash  ModuleHash
	Backend     string
	WasmBytes   []byte
}

// SerializeArtifact writes the artifact envelope for an on-disk cache
// entry, per spec.md §6.2's {magic, version, Fingerprint, ModuleHash,
// backend name, module bytes} layout.
func SerializeArtifact(fp Fingerprint, hash ModuleHash, backend string, wasmBytes []byte, w io.Writer) error {
	if _, err := io.WriteString(w, artifactMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(artifactVersion)); err != nil {
		return err
	}
	for _, s := range []string{string(fp), string(hash), backend} {
		if err := writeLPString(w, s); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(wasmBytes))); err != nil {
		return err
	}
	_, err := w.Write(wasmBytes)
	return err
}

// DeserializeArtifact reads back an envelope written by SerializeArtifact.
// It does not re-run Compile; callers combine this with a Compiler to
// rebuild an Artifact's Functions.
func DeserializeArtifact(r io.Reader) (fp Fingerprint, hash ModuleHash, backend string, wasmBytes []byte, err error) {
	var magic [5]byte
	if _, err = io.ReadFull(r, magic[:]); err != nil {
		return
	}
	if string(magic[:]) != artifactMagic {
		err = fmt.Errorf("engine: bad artifact magic %q", magic)
		return
	}
	var version uint32
	if err = binary.Read(r, binary.LittleEndian, &version); err != nil {
		return
	}
	if version != artifactVersion {
		err = fmt.Errorf("engine: unsupported artifact version %d", version)
		return
	}
	var fpStr, hashStr string
	if fpStr, err = readLPString(r); err != nil {
		return
	}
	if hashStr, err = readLPString(r); err != nil {
		return
	}
	if backend, err = readLPString(r); err != nil {
		return
	}
	fp, hash = Fingerprint(fpStr), ModuleHash(hashStr)
	var n uint64
	if err = binary.Read(r, binary.LittleEndian, &n); err != nil {
		return
	}
	wasmBytes = make([]byte, n)
	_, err = io.ReadFull(r, wasmBytes)
	return
}

func writeLPString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readLPString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
