package record

import (
	"reflect"
	"sync"
	"sync/atomic"
	"weak"
)

type cacheKey struct {
	t  reflect.Type
	id int64
}

// identityCache maps (type, id) to a weakly held entity. An entry whose
// entity has been collected reads as a miss and is dropped on access or by
// sweep.
type identityCache struct {
	entries sync.Map // cacheKey -> weak.Pointer[BaseEntity]
	hits    atomic.Int64
	misses  atomic.Int64
}

// CacheStats is a snapshot of identity cache counters.
type CacheStats struct {
	Hits    int64
	Misses  int64
	Entries int
}

func keyOf(e Entity) cacheKey {
	return cacheKey{t: reflect.TypeOf(e).Elem(), id: e.ID()}
}

func deref(v any) Entity {
	wp := v.(weak.Pointer[BaseEntity])
	if b := wp.Value(); b != nil {
		return b.self
	}
	return nil
}

// get returns the live instance for key or nil.
func (c *identityCache) get(key cacheKey) Entity {
	v, ok := c.entries.Load(key)
	if !ok {
		c.misses.Add(1)
		return nil
	}
	if e := deref(v); e != nil {
		c.hits.Add(1)
		return e
	}
	c.entries.CompareAndDelete(key, v)
	c.misses.Add(1)
	return nil
}

// peek is get without touching the hit and miss counters.
func (c *identityCache) peek(key cacheKey) Entity {
	if v, ok := c.entries.Load(key); ok {
		return deref(v)
	}
	return nil
}

func ref(e Entity) weak.Pointer[BaseEntity] {
	b := e.base()
	if b.self != e {
		b.self = e
	}
	return weak.Make(b)
}

// put registers e, replacing any entry for the same key.
func (c *identityCache) put(e Entity) {
	c.entries.Store(keyOf(e), ref(e))
}

// claim registers e unless a live instance already holds its key, in which
// case that instance is returned instead.
func (c *identityCache) claim(e Entity) Entity {
	key := keyOf(e)
	wp := ref(e)
	for {
		v, loaded := c.entries.LoadOrStore(key, wp)
		if !loaded {
			return e
		}
		if existing := deref(v); existing != nil {
			return existing
		}
		if c.entries.CompareAndSwap(key, v, wp) {
			return e
		}
	}
}

func (c *identityCache) evict(key cacheKey) {
	c.entries.Delete(key)
}

// release drops e's entry only if e is the instance registered for its key.
func (c *identityCache) release(e Entity) {
	key := keyOf(e)
	if v, ok := c.entries.Load(key); ok && deref(v) == e {
		c.entries.CompareAndDelete(key, v)
	}
}

// sweep drops entries whose entity has been collected and returns how many
// were removed.
func (c *identityCache) sweep() int {
	n := 0
	c.entries.Range(func(k, v any) bool {
		if deref(v) == nil && c.entries.CompareAndDelete(k, v) {
			n++
		}
		return true
	})
	return n
}

// live counts entries whose entity is still reachable.
func (c *identityCache) live() int {
	n := 0
	c.entries.Range(func(_, v any) bool {
		if deref(v) != nil {
			n++
		}
		return true
	})
	return n
}

func (c *identityCache) clear() {
	c.entries.Clear()
}

func (c *identityCache) stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: c.live()}
}
