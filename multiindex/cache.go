package multiindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hupe1980/morphidx/model"
	"github.com/hupe1980/morphidx/rtree"
)

// UsageRateCacheParams bound the memory of the sub-tree cache.
type UsageRateCacheParams struct {
	// MaxCachedElements is the element budget across all resident sub-trees,
	// typically a byte budget divided by the encoded value size.
	MaxCachedElements uint64

	// MaxEvict is the upper bound on victims per miss. Default 1.
	MaxEvict int
}

// usageMeta is the per-sub-tree usage bookkeeping. All counters are
// monotone except on eviction, when the current counts fold into the
// previous ones.
type usageMeta struct {
	loadGeneration      uint64
	currentAccessCount  uint64
	previousAccessCount uint64
	previousAge         uint64
	evictionCount       uint64
}

func (m *usageMeta) accessCount() uint64 {
	return m.previousAccessCount + m.currentAccessCount
}

func (m *usageMeta) incacheCount(queryCount uint64) uint64 {
	return (queryCount - m.loadGeneration + 1) + m.previousAge
}

// usageRate is the eviction priority: accesses per unit residency time.
// Sub-trees loaded during the current generation report +Inf so they are
// never evicted mid-query.
func (m *usageMeta) usageRate(queryCount uint64) float64 {
	if queryCount == m.loadGeneration {
		return math.Inf(1)
	}
	return float64(m.accessCount()) / float64(m.incacheCount(queryCount))
}

func (m *usageMeta) onQuery() {
	m.currentAccessCount++
}

func (m *usageMeta) onLoad(queryCount uint64) {
	m.loadGeneration = queryCount
	m.currentAccessCount = 1
}

func (m *usageMeta) onEvict(queryCount uint64) {
	m.previousAccessCount += m.currentAccessCount
	m.previousAge = queryCount - m.loadGeneration + 1
	m.currentAccessCount = 0
	m.evictionCount++
}

// UsageRateCache keeps a bounded set of sub-trees resident, evicting the
// ones with the lowest usage rate. It owns the trees it caches and borrows
// the storage it loads from; it is not safe for concurrent use.
type UsageRateCache[V model.Indexed] struct {
	params  UsageRateCacheParams
	storage *Storage[V]

	subtrees map[uint64]*rtree.Tree[V]
	meta     map[uint64]*usageMeta

	cachedElements       uint64
	mostRecentQueryCount uint64

	logger   *slog.Logger
	statsDir string
}

// NewUsageRateCache creates a cache over storage with the given bounds.
func NewUsageRateCache[V model.Indexed](params UsageRateCacheParams, storage *Storage[V], logger *slog.Logger) *UsageRateCache[V] {
	if params.MaxEvict < 1 {
		params.MaxEvict = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UsageRateCache[V]{
		params:   params,
		storage:  storage,
		subtrees: make(map[uint64]*rtree.Tree[V]),
		meta:     make(map[uint64]*usageMeta),
		logger:   logger,
	}
}

// SetStatsDir enables the advisory stats snapshot written by Close.
func (c *UsageRateCache[V]) SetStatsDir(dir string) { c.statsDir = dir }

// CachedElements returns the summed element counts of resident sub-trees.
func (c *UsageRateCache[V]) CachedElements() uint64 { return c.cachedElements }

// Resident reports whether sub-tree id is currently cached.
func (c *UsageRateCache[V]) Resident(id uint64) bool {
	_, ok := c.subtrees[id]
	return ok
}

// LoadSubtree returns the sub-tree described by ref, loading and caching it
// on a miss. After it returns, the entry is resident and protected from
// eviction for the remainder of generation queryCount. Load errors surface
// unchanged; the cache never retries.
func (c *UsageRateCache[V]) LoadSubtree(ctx context.Context, ref model.SubTreeRef, queryCount uint64) (*rtree.Tree[V], error) {
	c.mostRecentQueryCount = queryCount

	if tree, ok := c.subtrees[ref.ID]; ok {
		c.metaFor(ref.ID).onQuery()
		return tree, nil
	}

	c.evictSubtrees(ref, queryCount)

	tree, err := c.storage.LoadSub(ctx, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("multiindex: loading sub-tree %d: %w", ref.ID, err)
	}

	c.metaFor(ref.ID).onLoad(queryCount)
	c.subtrees[ref.ID] = tree
	c.cachedElements += uint64(tree.Len())
	return tree, nil
}

func (c *UsageRateCache[V]) metaFor(id uint64) *usageMeta {
	m, ok := c.meta[id]
	if !ok {
		m = &usageMeta{}
		c.meta[id] = m
	}
	return m
}

// evictSubtrees makes room for an incoming sub-tree. Victims are the
// resident sub-trees with the lowest usage rate, at most MaxEvict of them;
// entries loaded during the current generation are never selected. The
// incoming sub-tree may push the total over the budget for the remainder of
// the generation.
func (c *UsageRateCache[V]) evictSubtrees(incoming model.SubTreeRef, queryCount uint64) {
	if c.cachedElements+incoming.NElements <= c.params.MaxCachedElements {
		return
	}

	c.logger.Debug("eviction required",
		"sub_tree", incoming.ID,
		"cached_elements", c.cachedElements,
		"max_cached_elements", c.params.MaxCachedElements,
	)

	ids := c.subtreeIDsByUsageRate(queryCount)

	evicted := 0
	for _, id := range ids {
		if evicted >= c.params.MaxEvict {
			break
		}
		if c.cachedElements+incoming.NElements <= c.params.MaxCachedElements {
			break
		}
		m := c.meta[id]
		if math.IsInf(m.usageRate(queryCount), 1) {
			// Only protected entries remain.
			break
		}

		m.onEvict(queryCount)
		c.cachedElements -= uint64(c.subtrees[id].Len())
		delete(c.subtrees, id)
		evicted++
	}
}

func (c *UsageRateCache[V]) subtreeIDsByUsageRate(queryCount uint64) []uint64 {
	ids := make([]uint64, 0, len(c.subtrees))
	for id := range c.subtrees {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ri := c.meta[ids[i]].usageRate(queryCount)
		rj := c.meta[ids[j]].usageRate(queryCount)
		if ri != rj {
			return ri < rj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// cacheStat is one line of the advisory stats snapshot.
type cacheStat struct {
	ID            uint64  `json:"id"`
	AccessCount   uint64  `json:"access_count"`
	EvictionCount uint64  `json:"eviction_count"`
	IncacheCount  uint64  `json:"incache_count"`
	UsageRate     float64 `json:"usage_rate"`
}

// Close releases the cached sub-trees and, if a stats directory is set,
// writes a timestamped usage snapshot. The snapshot is advisory; failures
// are logged and swallowed.
func (c *UsageRateCache[V]) Close() error {
	if c.statsDir != "" {
		c.dumpStats()
	}
	c.subtrees = make(map[uint64]*rtree.Tree[V])
	c.cachedElements = 0
	return nil
}

func (c *UsageRateCache[V]) dumpStats() {
	stats := make([]cacheStat, 0, len(c.meta))
	for id, m := range c.meta {
		rate := m.usageRate(c.mostRecentQueryCount)
		if math.IsInf(rate, 1) {
			rate = -1 // JSON has no Inf; mark protected entries
		}
		stats = append(stats, cacheStat{
			ID:            id,
			AccessCount:   m.accessCount(),
			EvictionCount: m.evictionCount,
			IncacheCount:  m.incacheCount(c.mostRecentQueryCount),
			UsageRate:     rate,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].ID < stats[j].ID })

	filename := filepath.Join(c.statsDir,
		"cache_stats_"+time.Now().UTC().Format("20060102T150405Z")+".json")

	data, err := json.MarshalIndent(stats, "", "  ")
	if err == nil {
		err = os.WriteFile(filename, data, 0644)
	}
	if err != nil {
		c.logger.Warn("failed to write cache stats", "filename", filename, "error", err)
	}
}
