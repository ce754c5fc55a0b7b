package source

import (
	"sort"

	"github.com/dunova/silent-context-foundry/internal/logging"
)

// Cursors maps cursor keys to the byte offset already consumed from the
// file. The table lives only in memory; on restart every source re-seeds
// at its current size.
type Cursors struct {
	offsets map[string]int64
}

func NewCursors() *Cursors {
	return &Cursors{offsets: make(map[string]int64)}
}

// Get returns the offset for key, or fallback when the key is unknown.
// Seeding unknown keys at the file's current size is what makes a fresh
// cursor skip historical content.
func (c *Cursors) Get(key string, fallback int64) int64 {
	if off, ok := c.offsets[key]; ok {
		return off
	}
	return fallback
}

// Seed records an offset for key, overwriting any previous value.
func (c *Cursors) Seed(key string, offset int64) {
	c.offsets[key] = offset
}

// Commit records the offset reached by a completed read.
func (c *Cursors) Commit(key string, offset int64) {
	c.offsets[key] = offset
}

func (c *Cursors) Len() int {
	return len(c.offsets)
}

// Cleanup bulk-evicts cursors once the table exceeds max: the
// lexicographically-first third of keys is dropped. Evicted cursors
// re-seed at file size on the next tail or activation, so eviction can skip
// data but never replays it.
func (c *Cursors) Cleanup(max int) int {
	if len(c.offsets) <= max {
		return 0
	}
	keys := make([]string, 0, len(c.offsets))
	for k := range c.offsets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	removeN := len(keys) / 3
	if removeN < 1 {
		removeN = 1
	}
	for _, k := range keys[:removeN] {
		delete(c.offsets, k)
	}
	logging.Infof("Cleaned %d file cursors.", removeN)
	return removeN
}
