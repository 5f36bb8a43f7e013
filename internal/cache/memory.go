// Package cache provides an in-memory LRU+TTL cache used to avoid
// re-tokenizing document bodies seen twice within one rebuild run or
// query request.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// entry is one cache slot.
type entry struct {
	Key       string
	Value     []byte
	Size      int64
	ExpiresAt time.Time
	HitCount  int64
}

// MemoryCache is a size-bounded, TTL-expiring LRU cache.
type MemoryCache struct {
	capacity    int64
	currentSize int64
	ttl         time.Duration
	items       map[string]*list.Element
	order       *list.List
	stats       Stats
	mu          sync.RWMutex
}

// Stats reports cache activity.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int64 `json:"size"`
	ItemCount int   `json:"item_count"`
}

// Config configures a MemoryCache.
type Config struct {
	Capacity int64         // Maximum size in bytes
	TTL      time.Duration // Time to live
}

// DefaultConfig bounds the cache to 100MB with a 30-minute TTL.
func DefaultConfig() Config {
	return Config{Capacity: 100 * 1024 * 1024, TTL: 30 * time.Minute}
}

// NewMemoryCache creates a MemoryCache and starts its background
// expiration sweep.
func NewMemoryCache(cfg Config) *MemoryCache {
	mc := &MemoryCache{
		capacity: cfg.Capacity,
		ttl:      cfg.TTL,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
	go mc.cleanup()
	return mc
}

// Get retrieves a value, promoting it to most-recently-used on a hit.
func (mc *MemoryCache) Get(key string) ([]byte, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	elem, ok := mc.items[key]
	if !ok {
		mc.stats.Misses++
		return nil, false
	}

	e := elem.Value.(*entry)
	if time.Now().After(e.ExpiresAt) {
		mc.removeElement(elem)
		mc.stats.Misses++
		return nil, false
	}

	mc.order.MoveToFront(elem)
	e.HitCount++
	mc.stats.Hits++
	return e.Value, true
}

// Set stores a value using the cache's default TTL.
func (mc *MemoryCache) Set(key string, value []byte) {
	mc.SetWithTTL(key, value, mc.ttl)
}

// SetWithTTL stores a value with an explicit TTL, evicting the least
// recently used entries as needed to stay within capacity.
func (mc *MemoryCache) SetWithTTL(key string, value []byte, ttl time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	size := int64(len(value))

	if elem, ok := mc.items[key]; ok {
		mc.removeElement(elem)
	}

	for mc.currentSize+size > mc.capacity && mc.order.Len() > 0 {
		mc.evictOldest()
	}

	e := &entry{Key: key, Value: value, Size: size, ExpiresAt: time.Now().Add(ttl)}
	elem := mc.order.PushFront(e)
	mc.items[key] = elem
	mc.currentSize += size
	mc.stats.Size = mc.currentSize
	mc.stats.ItemCount = len(mc.items)
}

// Delete removes a key, reporting whether it was present.
func (mc *MemoryCache) Delete(key string) bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	elem, ok := mc.items[key]
	if !ok {
		return false
	}
	mc.removeElement(elem)
	return true
}

// Clear empties the cache.
func (mc *MemoryCache) Clear() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.items = make(map[string]*list.Element)
	mc.order.Init()
	mc.currentSize = 0
	mc.stats.Size = 0
	mc.stats.ItemCount = 0
}

// GetStats returns a snapshot of cache activity.
func (mc *MemoryCache) GetStats() Stats {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return Stats{
		Hits:      mc.stats.Hits,
		Misses:    mc.stats.Misses,
		Evictions: mc.stats.Evictions,
		Size:      mc.currentSize,
		ItemCount: len(mc.items),
	}
}

func (mc *MemoryCache) removeElement(elem *list.Element) {
	e := elem.Value.(*entry)
	delete(mc.items, e.Key)
	mc.order.Remove(elem)
	mc.currentSize -= e.Size
}

func (mc *MemoryCache) evictOldest() {
	elem := mc.order.Back()
	if elem != nil {
		mc.removeElement(elem)
		mc.stats.Evictions++
	}
}

func (mc *MemoryCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		mc.mu.Lock()
		now := time.Now()
		var expired []*list.Element
		for elem := mc.order.Back(); elem != nil; elem = elem.Prev() {
			if now.After(elem.Value.(*entry).ExpiresAt) {
				expired = append(expired, elem)
			}
		}
		for _, elem := range expired {
			mc.removeElement(elem)
		}
		mc.mu.Unlock()
	}
}

// DocumentCache caches tokenized/processed document bodies by content hash
// so a document submitted (or rebuilt) more than once within the cache TTL
// is not retokenized.
type DocumentCache struct {
	cache *MemoryCache
}

// NewDocumentCache creates a DocumentCache.
func NewDocumentCache(cfg Config) *DocumentCache {
	return &DocumentCache{cache: NewMemoryCache(cfg)}
}

// KeyForContent derives a stable cache key from document content.
func (dc *DocumentCache) KeyForContent(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

// Get retrieves a cached serialized value for content, if present.
func (dc *DocumentCache) Get(content string) ([]byte, bool) {
	return dc.cache.Get(dc.KeyForContent(content))
}

// Set stores a serialized value for content.
func (dc *DocumentCache) Set(content string, value []byte) {
	dc.cache.Set(dc.KeyForContent(content), value)
}

// GetStats returns cache activity.
func (dc *DocumentCache) GetStats() Stats {
	return dc.cache.GetStats()
}
