// Package assets serves the portal UI through a versioned offline cache,
// choosing cache-first, network-first or stale-while-revalidate per request.
package assets

import (
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Entry is a cached response.
type Entry struct {
	Status int
	Header http.Header
	Body   []byte
	Stored time.Time
}

// OK reports whether the entry holds a successful response.
func (e Entry) OK() bool {
	return e.Status >= 200 && e.Status < 300
}

// Cache is a named, bounded response cache. The least recently used entry
// is evicted first.
type Cache struct {
	name    string
	entries *lru.Cache[string, Entry]
}

func newCache(name string, size int) (*Cache, error) {
	entries, err := lru.New[string, Entry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache %s: %w", name, err)
	}
	return &Cache{name: name, entries: entries}, nil
}

// Name returns the cache name.
func (c *Cache) Name() string {
	return c.name
}

// Get returns the entry stored under key.
func (c *Cache) Get(key string) (Entry, bool) {
	return c.entries.Get(key)
}

// Put stores e under key.
func (c *Cache) Put(key string, e Entry) {
	c.entries.Add(key, e)
}

// Len returns the entry count.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Keys returns the keys from oldest to newest.
func (c *Cache) Keys() []string {
	return c.entries.Keys()
}

// Storage holds the open caches by name.
type Storage struct {
	mu     sync.RWMutex
	caches map[string]*Cache
	order  []string
}

// NewStorage returns an empty storage.
func NewStorage() *Storage {
	return &Storage{caches: map[string]*Cache{}}
}

// Open returns the cache called name, creating it with room for size
// entries if it does not exist.
func (s *Storage) Open(name string, size int) (*Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.caches[name]; ok {
		return c, nil
	}
	c, err := newCache(name, size)
	if err != nil {
		return nil, err
	}
	s.caches[name] = c
	s.order = append(s.order, name)
	return c, nil
}

// Delete drops the cache called name.
func (s *Storage) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.caches[name]; !ok {
		return false
	}
	delete(s.caches, name)
	s.order = slices.DeleteFunc(s.order, func(n string) bool { return n == name })
	return true
}

// Names returns the cache names in creation order.
func (s *Storage) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

// Match looks key up in every cache, oldest cache first.
func (s *Storage) Match(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, name := range s.order {
		if e, ok := s.caches[name].Get(key); ok {
			return e, true
		}
	}
	return Entry{}, false
}
