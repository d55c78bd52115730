// Package cache memoizes recommendation results by a content-derived
// key so the expensive recommendation step is not repeated for a query
// whose plan has not changed.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mickamy/xadvise/internal/logging"
	"github.com/mickamy/xadvise/internal/model"
)

// DefaultCapacity matches the bound the service has always run with.
const DefaultCapacity = 100

// keySubset is the plan-summary slice that participates in the digest.
// Field order is alphabetical so the serialized form is deterministic.
type keySubset struct {
	ExecutionTime float64 `json:"execution_time"`
	NodeType      string  `json:"node_type"`
	Rows          float64 `json:"rows"`
	TotalCost     float64 `json:"total_cost"`
}

// Key builds the cache key for a (model, query, plan summary) triple.
// Any change in the summary subset changes the key even when the query
// text is identical.
func Key(modelID, query string, summary *model.PlanSummary) string {
	subset := keySubset{}
	if summary != nil {
		subset.ExecutionTime = summary.ExecutionTimeMs
		subset.Rows = summary.Rows
		subset.TotalCost = summary.TotalCost
		if len(summary.Nodes) > 0 {
			subset.NodeType = summary.Nodes[0].NodeType
		}
	}
	payload, _ := json.Marshal(subset)
	material := fmt.Sprintf("%s|%s|%s", modelID, strings.TrimSpace(query), payload)
	return fmt.Sprintf("%x", md5.Sum([]byte(material)))
}

// Cache is a bounded mapping of key to recommendation result. Eviction
// is strict FIFO over insertion order: a hit does not move an entry to
// the back of the eviction queue. Historical behavior, kept on purpose;
// do not turn this into an LRU.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*model.Advice
	order    []string
}

// New returns an empty cache bounded to the given capacity. Non-positive
// capacities fall back to DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*model.Advice, capacity),
	}
}

// ComputeOrFetch returns the cached result for key, or invokes compute,
// stores the result, and returns it. Failed computations are never
// stored, so the next call retries. Concurrent misses for the same key
// may both invoke compute; the duplicate write is harmless since both
// store under the same key.
func (c *Cache) ComputeOrFetch(ctx context.Context, key string, compute func(context.Context) (*model.Advice, error)) (*model.Advice, bool, error) {
	if result, ok := c.get(key); ok {
		logging.Debug("analysis cache hit", "key", abbreviate(key))
		return result, true, nil
	}
	logging.Debug("analysis cache miss", "key", abbreviate(key))

	result, err := compute(ctx)
	if err != nil {
		return nil, false, err
	}
	c.put(key, result)
	return result, false, nil
}

func (c *Cache) get(key string) (*model.Advice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result, ok := c.entries[key]
	return result, ok
}

func (c *Cache) put(key string, result *model.Advice) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = result
		return
	}

	if len(c.entries) >= c.capacity && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
		logging.Debug("analysis cache evicted oldest entry", "key", abbreviate(oldest))
	}

	c.entries[key] = result
	c.order = append(c.order, key)
}

// Stats describes the cache contents for introspection endpoints.
type Stats struct {
	Size     int      `json:"cache_size"`
	Capacity int      `json:"cache_max_size"`
	Keys     []string `json:"cache_keys"`
}

// Stats returns a read-only snapshot; keys are listed in insertion
// order, abbreviated for readability.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.order))
	for _, key := range c.order {
		keys = append(keys, abbreviate(key))
	}
	return Stats{Size: len(c.entries), Capacity: c.capacity, Keys: keys}
}

// Clear removes all entries; subsequent lookups miss until repopulated.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*model.Advice, c.capacity)
	c.order = nil
	logging.Info("analysis cache cleared")
}

func abbreviate(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8] + "..."
}
