// Package store provides the in-memory storage engine used by kvserver.
package store

import (
	"sync"

	"github.com/zeebo/xxh3"
)

// DefaultShards is the shard count used when New is given a non-positive count.
const DefaultShards = 32

// Memory is a concurrent in-memory key-value engine.
// Keys are spread over shards by xxh3 hash; each shard has its own lock, so
// connections touching different keys rarely contend.
type Memory struct {
	shards []*shard
}

type shard struct {
	mu    sync.RWMutex
	items map[string]string
}

// New creates an engine with the given number of shards.
func New(shards int) *Memory {
	if shards <= 0 {
		shards = DefaultShards
	}

	m := &Memory{shards: make([]*shard, shards)}
	for i := range m.shards {
		m.shards[i] = &shard{items: make(map[string]string)}
	}
	return m
}

func (m *Memory) shardFor(key string) *shard {
	return m.shards[xxh3.HashString(key)%uint64(len(m.shards))]
}

// Get returns the value stored for key.
func (m *Memory) Get(key string) (string, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.items[key]
	return value, ok
}

// Put stores value for key, replacing any previous value.
func (m *Memory) Put(key, value string) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = value
}

// Delete removes key. It returns false if the key was not present.
func (m *Memory) Delete(key string) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[key]; !ok {
		return false
	}
	delete(s.items, key)
	return true
}

// Exists reports whether key is present.
func (m *Memory) Exists(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Len returns the number of keys stored.
func (m *Memory) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}
