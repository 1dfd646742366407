package engine

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/wasmrt/wasmrt/internal/compilationcache"
	"github.com/wasmrt/wasmrt/internal/wasm"
	"github.com/wasmrt/wasmrt/internal/wasm/binary"
)

// Engine owns a Compiler backend and an optional content-addressed cache,
// and is the entry point modules are compiled through (spec.md §4.3). Each
// wasmrt.Runtime builds its own Engine; Runtimes configured with the same
// wasmrt.Cache share that cache's entries.
type Engine struct {
	compiler Compiler
	cache    compilationcache.Cache
	features wasm.Features

	mu       sync.RWMutex
	byHash   map[ModuleHash]*Artifact // in-process de-dup, independent of cache
}

// NewEngine constructs an Engine around compiler. cache may be nil, in
// which case only the in-process de-dup table keeps the same bytes from
// being compiled twice.
func NewEngine(compiler Compiler, features wasm.Features, cache compilationcache.Cache) *Engine {
	return &Engine{
		compiler: compiler,
		cache:    cache,
		features: features,
		byHash:   map[ModuleHash]*Artifact{},
	}
}

// CompileModule compiles module into an Artifact identified by wasmBytes,
// serving the in-process de-dup table or a cache hit when one is available
// and running the Compiler otherwise. module must already have been
// produced by binary.DecodeModule from wasmBytes and passed binary.Validate;
// CompileModule does not re-validate it. A cache hit re-decodes and
// re-validates the cached bytes and compiles that result instead of module.
func (e *Engine) CompileModule(wasmBytes []byte, module *wasm.ModuleInfo) (*Artifact, error) {
	fp := NewFingerprint(wasmBytes, e.compiler.Name(), e.features)
	hash := NewModuleHash(wasmBytes)

	e.mu.RLock()
	if a, ok := e.byHash[hash]; ok && a.Fingerprint == fp {
		e.mu.RUnlock()
		return a, nil
	}
	e.mu.RUnlock()

	if e.cache != nil {
		if a, err := e.loadFromCache(fp); err != nil {
			return nil, err
		} else if a != nil {
			e.store(hash, a)
			return a, nil
		}
	}

	funcs, err := e.compiler.Compile(module, e.features)
	if err != nil {
		return nil, err
	}
	a := &Artifact{Fingerprint: fp, ModuleHash: hash, Backend: e.compiler.Name(), Module: module, Functions: funcs}
	e.store(hash, a)

	if e.cache != nil {
		var buf bytes.Buffer
		if err := SerializeArtifact(fp, hash, e.compiler.Name(), wasmBytes, &buf); err == nil {
			_ = e.cache.Add(cacheKey(fp), &buf)
		}
	}
	return a, nil
}

func (e *Engine) loadFromCache(fp Fingerprint) (*Artifact, error) {
	content, ok, err := e.cache.Get(cacheKey(fp))
	if err != nil || !ok {
		return nil, err
	}
	defer content.Close()

	gotFP, hash, backend, wasmBytes, err := DeserializeArtifact(content)
	if err != nil || gotFP != fp || backend != e.compiler.Name() {
		return nil, nil // treat a malformed or stale entry as a miss, not a hard error
	}
	module, decodeErr := binary.DecodeModule(bytes.NewReader(wasmBytes), e.features)
	if decodeErr == nil {
		decodeErr = binary.Validate(module, e.features)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("engine: cached module failed to redecode: %w", decodeErr)
	}
	funcs, err := e.compiler.Compile(module, e.features)
	if err != nil {
		return nil, err
	}
	return &Artifact{Fingerprint: fp, ModuleHash: hash, Backend: backend, Module: module, Functions: funcs}, nil
}

func (e *Engine) store(hash ModuleHash, a *Artifact) {
	e.mu.Lock()
	e.byHash[hash] = a
	e.mu.Unlock()
}

// Forget drops hash from the in-process de-dup table (but not from the
// on-disk cache), e.g. when a wasmrt.CompiledModule implementing api.Closer
// is closed.
func (e *Engine) Forget(hash ModuleHash) {
	e.mu.Lock()
	delete(e.byHash, hash)
	e.mu.Unlock()
}

func cacheKey(fp Fingerprint) compilationcache.Key {
	var k compilationcache.Key
	copy(k[:], []byte(fp))
	return k
}
