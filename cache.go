package wasmrt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/wasmrt/wasmrt/internal/compilationcache"
)

// Cache is the compilation cache configuration shared by every Runtime
// built with RuntimeConfig.WithCache (spec.md §4.3/§6.3): an in-process LRU
// in front of an optional on-disk tier, holding each compiled module's
// bytes under a Fingerprint-derived key. Compiled functions are not
// stored: a hit still re-decodes, re-validates and recompiles those bytes.
// Only the on-disk tier (NewFileCache) survives a process restart.
//
// A Cache is only safe to share across Runtimes that agree not to write
// conflicting entries for the same module bytes under different feature
// sets; internal/engine.Fingerprint folds the feature set into the cache
// key, so this is enforced rather than merely documented.
type Cache interface {
	backend() compilationcache.Cache

	// Watch starts a background watch for out-of-process changes to this
	// Cache's on-disk directory (spec.md §6.3's multi-process sharing
	// case), invoking onEvict with the changed entry's file name. Returns
	// an error if this Cache has no on-disk tier.
	Watch(onEvict func(name string), log *logrus.Entry) (*compilationcache.DirWatcher, error)
}

type cache struct {
	c   compilationcache.Cache
	dir string // "" unless file-backed
}

func (c *cache) backend() compilationcache.Cache { return c.c }

func (c *cache) Watch(onEvict func(name string), log *logrus.Entry) (*compilationcache.DirWatcher, error) {
	if c.dir == "" {
		return nil, fmt.Errorf("wasmrt: cache has no on-disk directory to watch")
	}
	return compilationcache.WatchDir(c.dir, onEvict, log)
}

// NewCache returns a Cache with only the in-process LRU tier: entries do
// not survive a process restart.
func NewCache(lruSize int) Cache {
	return &cache{c: compilationcache.NewLRUCache(lruSize, nil)}
}

// NewFileCache returns a Cache backed by an on-disk directory, fronted by
// an in-process LRU of lruSize entries. dir is created if it doesn't
// already exist.
//
// Note: the embedder must safeguard this directory from uncoordinated
// external changes; use Watch if another process may share it.
func NewFileCache(dir string, lruSize int) (Cache, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := mkdirCache(dir); err != nil {
		return nil, err
	}
	ctx := context.WithValue(context.Background(), compilationcache.FileCachePathKey{}, dir)
	fc := compilationcache.NewFileCache(ctx)
	return &cache{c: compilationcache.NewLRUCache(lruSize, fc), dir: dir}, nil
}

func mkdirCache(dirname string) error {
	if st, err := os.Stat(dirname); os.IsNotExist(err) {
		if err := os.MkdirAll(dirname, 0o700); err != nil {
			return fmt.Errorf("create directory %s: %w", dirname, err)
		}
	} else if err != nil {
		return err
	} else if !st.IsDir() {
		return fmt.Errorf("%s is not a directory", dirname)
	}
	return nil
}
