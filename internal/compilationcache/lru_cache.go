package compilationcache

import (
	"bytes"
	"io"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// entry is what memCache actually stores: LRU eviction only ever needs to
// drop memory copies, never the on-disk file, so each entry is just the raw
// bytes Add received.
type entry = []byte

// memCache is a bounded in-process LRU sitting in front of a Cache, almost
// always the on-disk fileCache. It absorbs the common case (the same few
// modules recompiled repeatedly within one process) without touching the
// filesystem, while Get still falls through to next on a miss and populates
// the LRU from what it finds there.
type memCache struct {
	lru  *lru.Cache[Key, entry]
	next Cache
	mu   sync.Mutex
}

// NewLRUCache wraps next with an in-memory LRU of the given entry capacity.
// A capacity of 0 disables the LRU and all calls pass straight through.
// next may be nil, in which case the LRU is the only tier.
func NewLRUCache(size int, next Cache) Cache {
	if size <= 0 {
		return next
	}
	c, err := lru.New[Key, entry](size)
	if err != nil {
		return next // size <= 0 already handled above; this is unreachable in practice
	}
	return &memCache{lru: c, next: next}
}

func (c *memCache) Get(key Key) (io.ReadCloser, bool, error) {
	c.mu.Lock()
	if b, ok := c.lru.Get(key); ok {
		c.mu.Unlock()
		return io.NopCloser(bytes.NewReader(b)), true, nil
	}
	c.mu.Unlock()

	if c.next == nil {
		return nil, false, nil
	}
	content, ok, err := c.next.Get(key)
	if !ok || err != nil {
		return nil, ok, err
	}
	defer content.Close()
	b, err := io.ReadAll(content)
	if err != nil {
		return nil, false, err
	}
	c.mu.Lock()
	c.lru.Add(key, b)
	c.mu.Unlock()
	return io.NopCloser(bytes.NewReader(b)), true, nil
}

func (c *memCache) Add(key Key, content io.Reader) error {
	b, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.lru.Add(key, b)
	c.mu.Unlock()
	if c.next == nil {
		return nil
	}
	return c.next.Add(key, bytes.NewReader(b))
}

func (c *memCache) Delete(key Key) error {
	c.mu.Lock()
	c.lru.Remove(key)
	c.mu.Unlock()
	if c.next == nil {
		return nil
	}
	return c.next.Delete(key)
}
