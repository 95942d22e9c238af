package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Cache is a write-back view over a Store. It indexes every key at bootstrap,
// loads content on demand through Resolve, and batches writes until Flush.
// Get never performs I/O. All methods are safe for concurrent use.
type Cache struct {
	store   Store
	mu      sync.RWMutex
	loaded  map[string][]byte
	known   map[string]bool
	pending map[string]bool
	dropped map[string]bool
}

// NewCache creates a Cache backed by store.
func NewCache(store Store) *Cache {
	c := &Cache{store: store}
	c.reset()
	return c
}

func (c *Cache) reset() {
	c.loaded = make(map[string][]byte)
	c.known = make(map[string]bool)
	c.pending = make(map[string]bool)
	c.dropped = make(map[string]bool)
}

// Bootstrap indexes the store and eagerly loads keys under any of the given
// prefixes. Unflushed local changes are discarded.
func (c *Cache) Bootstrap(ctx context.Context, prefixes ...string) error {
	keys, err := c.store.List(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap index: %w", err)
	}

	var eager []string
	for _, key := range keys {
		if hasAnyPrefix(key, prefixes) {
			eager = append(eager, key)
		}
	}

	var entries []Entry
	if len(eager) > 0 {
		entries, err = c.store.Load(ctx, eager...)
		if err != nil {
			return fmt.Errorf("bootstrap load: %w", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	for _, key := range keys {
		c.known[key] = true
	}
	for _, e := range entries {
		c.loaded[e.Key] = e.Value
	}
	return nil
}

// Resolve loads any of keys not yet held in memory.
func (c *Cache) Resolve(ctx context.Context, keys ...string) error {
	c.mu.RLock()
	var missing []string
	for _, key := range keys {
		if _, ok := c.loaded[key]; !ok {
			missing = append(missing, key)
		}
	}
	c.mu.RUnlock()

	if len(missing) == 0 {
		return nil
	}

	entries, err := c.store.Load(ctx, missing...)
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	c.mu.Lock()
	for _, e := range entries {
		if c.pending[e.Key] {
			continue
		}
		c.loaded[e.Key] = e.Value
		c.known[e.Key] = true
	}
	c.mu.Unlock()
	return nil
}

// Invalidate forgets loaded content for keys so the next Resolve rereads the
// store. Keys with unflushed writes are kept.
func (c *Cache) Invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		if !c.pending[key] {
			delete(c.loaded, key)
		}
	}
}

// Flush persists pending writes and deletions.
func (c *Cache) Flush(ctx context.Context) error {
	c.mu.RLock()
	var writes []Entry
	for key := range c.pending {
		if val, ok := c.loaded[key]; ok {
			writes = append(writes, Entry{Key: key, Value: val})
		}
	}
	removals := slices.Collect(maps.Keys(c.dropped))
	c.mu.RUnlock()

	if len(writes) > 0 {
		if err := c.store.Save(ctx, writes...); err != nil {
			return fmt.Errorf("flush save: %w", err)
		}
	}
	if len(removals) > 0 {
		if err := c.store.Delete(ctx, removals...); err != nil {
			return fmt.Errorf("flush delete: %w", err)
		}
	}

	c.mu.Lock()
	for _, e := range writes {
		delete(c.pending, e.Key)
	}
	for _, key := range removals {
		delete(c.dropped, key)
	}
	c.mu.Unlock()
	return nil
}

// Get returns a copy of the loaded value for key.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	val, ok := c.loaded[key]
	if !ok {
		return nil, false
	}
	return slices.Clone(val), true
}

// Set stores value under key and marks it for the next Flush.
func (c *Cache) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loaded[key] = slices.Clone(value)
	c.known[key] = true
	c.pending[key] = true
	delete(c.dropped, key)
}

// Delete removes key locally and schedules its removal from the store.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.loaded, key)
	delete(c.known, key)
	delete(c.pending, key)
	c.dropped[key] = true
}

// Has reports whether key is indexed, loaded or not.
func (c *Cache) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.known[key]
}

// Keys returns the sorted indexed keys under prefix. An empty prefix returns
// every key.
func (c *Cache) Keys(prefix string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var keys []string
	for key := range c.known {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys
}

// Entries returns the loaded entries under prefix, sorted by key.
func (c *Cache) Entries(prefix string) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var entries []Entry
	for key, val := range c.loaded {
		if strings.HasPrefix(key, prefix) {
			entries = append(entries, Entry{Key: key, Value: slices.Clone(val)})
		}
	}
	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.Key, b.Key) })
	return entries
}

func hasAnyPrefix(key string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}
