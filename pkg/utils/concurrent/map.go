// Package concurrent holds a sharded map used by long-running commands that
// serve concurrent requests.
package concurrent

import (
	"hash/fnv"
	"sync"
)

const defaultShards = 16

type shard[V any] struct {
	sync.RWMutex
	items map[string]V
}

// Map is a string-keyed map split into independently locked shards.
type Map[V any] struct {
	shards []*shard[V]
}

func NewMap[V any]() *Map[V] {
	m := &Map[V]{shards: make([]*shard[V], defaultShards)}
	for i := range m.shards {
		m.shards[i] = &shard[V]{items: make(map[string]V)}
	}
	return m
}

func (m *Map[V]) shardFor(key string) *shard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%uint32(len(m.shards))]
}

func (m *Map[V]) Get(key string) (V, bool) {
	s := m.shardFor(key)
	s.RLock()
	defer s.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

func (m *Map[V]) Set(key string, v V) {
	s := m.shardFor(key)
	s.Lock()
	s.items[key] = v
	s.Unlock()
}

// Remove deletes key and returns what was stored.
func (m *Map[V]) Remove(key string) (V, bool) {
	s := m.shardFor(key)
	s.Lock()
	defer s.Unlock()
	v, ok := s.items[key]
	delete(s.items, key)
	return v, ok
}

// GetOrCreate returns the stored value or builds, stores and returns a new
// one. create runs under the shard lock, so concurrent callers for the same
// key build it once. Failed creations are not stored.
func (m *Map[V]) GetOrCreate(key string, create func() (V, error)) (V, error) {
	s := m.shardFor(key)
	s.RLock()
	v, ok := s.items[key]
	s.RUnlock()
	if ok {
		return v, nil
	}

	s.Lock()
	defer s.Unlock()
	if v, ok := s.items[key]; ok {
		return v, nil
	}
	v, err := create()
	if err != nil {
		return v, err
	}
	s.items[key] = v
	return v, nil
}

// Range calls fn for every entry until fn returns false. Each shard is
// read-locked while it is visited; fn must not write to the map.
func (m *Map[V]) Range(fn func(key string, v V) bool) {
	for _, s := range m.shards {
		s.RLock()
		for k, v := range s.items {
			if !fn(k, v) {
				s.RUnlock()
				return
			}
		}
		s.RUnlock()
	}
}

func (m *Map[V]) Len() int {
	n := 0
	for _, s := range m.shards {
		s.RLock()
		n += len(s.items)
		s.RUnlock()
	}
	return n
}
