// Package searchcache 缓存最近的搜索结果，避免对同一查询重复调用匹配服务
package searchcache

import (
	"context"
	"strings"
	"sync"
	"time"

	"recruit-desk/internal/constants"
	"recruit-desk/internal/logger"
	"recruit-desk/internal/persist"
	"recruit-desk/internal/types"
)

// DefaultTTL 缓存有效期
const DefaultTTL = 30 * time.Minute

// Entry 一条缓存，Timestamp 为毫秒时间戳
type Entry struct {
	Data      types.SearchResult `json:"data"`
	Timestamp int64              `json:"timestamp"`
	Loading   bool               `json:"loading,omitempty"`
}

// Options 缓存参数，零值使用默认
type Options struct {
	TTL        time.Duration
	PersistKey string
	Now        func() time.Time
}

// Cache 一个工作区的搜索缓存，写入时同步持久化到 store
type Cache struct {
	mu      sync.Mutex
	saveMu  sync.Mutex // 保证后写入的快照不会被先取的快照覆盖
	entries map[string]Entry
	store   *persist.Store
	ttl     time.Duration
	key     string
	now     func() time.Time
}

// Normalize 归一化查询：去掉首尾空白、转小写、合并连续空白
func Normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// New 创建空缓存，store 为 nil 时只在内存中保存
func New(store *persist.Store, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.PersistKey == "" {
		opts.PersistKey = constants.EntrySearchCache
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		entries: make(map[string]Entry),
		store:   store,
		ttl:     opts.TTL,
		key:     opts.PersistKey,
		now:     opts.Now,
	}
}

// Load 从 store 恢复缓存，过期条目在这里被丢弃
func Load(ctx context.Context, store *persist.Store, opts Options) (*Cache, error) {
	c := New(store, opts)
	if store == nil {
		return c, nil
	}
	var saved map[string]Entry
	ok, err := store.Load(ctx, c.key, &saved)
	if err != nil {
		return c, err
	}
	if !ok {
		return c, nil
	}
	for q, e := range saved {
		if e.Loading || !c.fresh(e) {
			continue
		}
		c.entries[q] = e
	}
	logger.Ctx(ctx).Debug().Int("entries", len(c.entries)).Int("dropped", len(saved)-len(c.entries)).Msg("恢复搜索缓存")
	return c, nil
}

func (c *Cache) fresh(e Entry) bool {
	return c.now().UnixMilli()-e.Timestamp < c.ttl.Milliseconds()
}

// Get 返回未过期的缓存结果。过期或加载中都视为未命中。
func (c *Cache) Get(query string) (types.SearchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[Normalize(query)]
	if !ok || e.Loading || !c.fresh(e) {
		return types.SearchResult{}, false
	}
	return e.Data.Clone(), true
}

// Lookup 返回条目本身，调用方可以区分加载中和未命中
func (c *Cache) Lookup(query string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[Normalize(query)]
	if !ok {
		return Entry{}, false
	}
	if !e.Loading && !c.fresh(e) {
		return Entry{}, false
	}
	e.Data = e.Data.Clone()
	return e, true
}

// Set 覆盖条目并重置时间戳，然后写入持久作用域
func (c *Cache) Set(ctx context.Context, query string, data types.SearchResult) error {
	c.mu.Lock()
	c.entries[Normalize(query)] = Entry{Data: data.Clone(), Timestamp: c.now().UnixMilli()}
	c.mu.Unlock()
	return c.save(ctx)
}

// Invalidate 删除一个条目
func (c *Cache) Invalidate(ctx context.Context, query string) error {
	c.mu.Lock()
	key := Normalize(query)
	_, existed := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()
	if !existed {
		return nil
	}
	return c.save(ctx)
}

// InvalidateSearch 删除 searchID 对应的条目，返回是否删除
func (c *Cache) InvalidateSearch(ctx context.Context, searchID string) (bool, error) {
	c.mu.Lock()
	removed := false
	for q, e := range c.entries {
		if !e.Loading && e.Data.SearchID == searchID {
			delete(c.entries, q)
			removed = true
		}
	}
	c.mu.Unlock()
	if !removed {
		return false, nil
	}
	return true, c.save(ctx)
}

// MarkLoading 为查询放置加载中占位。已有有效结果或已在加载时返回 false。
func (c *Cache) MarkLoading(query string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := Normalize(query)
	if e, ok := c.entries[key]; ok && (e.Loading || c.fresh(e)) {
		return false
	}
	c.entries[key] = Entry{Loading: true, Timestamp: c.now().UnixMilli()}
	return true
}

// IsLoading 查询是否正在加载
func (c *Cache) IsLoading(query string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[Normalize(query)]
	return ok && e.Loading
}

// ClearLoading 移除加载中占位，已经写入的结果不受影响
func (c *Cache) ClearLoading(query string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := Normalize(query)
	if e, ok := c.entries[key]; ok && e.Loading {
		delete(c.entries, key)
	}
}

// Len 条目数，包括已过期但尚未清理的
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// persistable 需要持有锁，加载中占位不落盘
func (c *Cache) persistable() map[string]Entry {
	out := make(map[string]Entry, len(c.entries))
	for q, e := range c.entries {
		if e.Loading {
			continue
		}
		out[q] = e
	}
	return out
}

// save 在 saveMu 内取快照并写入，写入顺序与快照顺序一致
func (c *Cache) save(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	snapshot := c.persistable()
	c.mu.Unlock()
	return c.store.Save(ctx, c.key, snapshot)
}
