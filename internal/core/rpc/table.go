package rpc

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultTableShards = 16

type tableShard struct {
	mu    sync.RWMutex
	conns map[ServiceKey]*ServiceConnection
}

// Table maps service keys to their ServiceConnection. Lookups are sharded by
// key hash; each key maps to one connection for the table's lifetime.
type Table struct {
	shards  []*tableShard
	mask    uint64
	factory func(ServiceKey) *ServiceConnection
}

// NewTable returns a table with shards rounded up to a power of two. factory
// builds the connection for a key on first use.
func NewTable(shards int, factory func(ServiceKey) *ServiceConnection) *Table {
	if shards <= 0 {
		shards = defaultTableShards
	}
	size := 1
	for size < shards {
		size <<= 1
	}

	t := &Table{
		shards:  make([]*tableShard, size),
		mask:    uint64(size - 1),
		factory: factory,
	}
	for i := range t.shards {
		t.shards[i] = &tableShard{conns: make(map[ServiceKey]*ServiceConnection)}
	}
	return t
}

func (t *Table) shard(key ServiceKey) *tableShard {
	h := xxhash.New()
	_, _ = h.WriteString(key.Interface)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(key.Name)
	return t.shards[h.Sum64()&t.mask]
}

// GetOrCreate returns the connection for key, creating it if absent. Racing
// callers all receive the same instance.
func (t *Table) GetOrCreate(key ServiceKey) *ServiceConnection {
	s := t.shard(key)

	s.mu.RLock()
	sc, ok := s.conns[key]
	s.mu.RUnlock()
	if ok {
		return sc
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok = s.conns[key]; ok {
		return sc
	}
	sc = t.factory(key)
	s.conns[key] = sc
	return sc
}

// Get returns the connection for key without creating it.
func (t *Table) Get(key ServiceKey) (*ServiceConnection, bool) {
	s := t.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.conns[key]
	return sc, ok
}

// Len counts the connections across all shards.
func (t *Table) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.RLock()
		n += len(s.conns)
		s.mu.RUnlock()
	}
	return n
}

// Range calls fn for every connection until fn returns false.
func (t *Table) Range(fn func(*ServiceConnection) bool) {
	for _, s := range t.shards {
		s.mu.RLock()
		conns := make([]*ServiceConnection, 0, len(s.conns))
		for _, sc := range s.conns {
			conns = append(conns, sc)
		}
		s.mu.RUnlock()

		for _, sc := range conns {
			if !fn(sc) {
				return
			}
		}
	}
}
