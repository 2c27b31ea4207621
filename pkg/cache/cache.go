// Package cache 实现进程内的应用级缓存服务：多种过期策略、按键/模式/标签失效、
// 条目大小估算、按字节预算淘汰，以及可取消的后台维护循环。
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"

	"marketcache/pkg/logger"
)

// EvictionReason 条目离开缓存的原因
type EvictionReason string

const (
	ReasonExpired     EvictionReason = "expired"
	ReasonEvicted     EvictionReason = "evicted"
	ReasonInvalidated EvictionReason = "invalidated"
	ReasonReplaced    EvictionReason = "replaced"
)

type removal struct {
	entry  *CacheEntry
	reason EvictionReason
}

// Cache 缓存门面。由调用方显式构造并注入，不存在全局实例。
type Cache struct {
	mu      sync.RWMutex
	store   *entryStore
	index   *tagIndex
	expiry  *expirationEngine
	sizer   *sizeEstimator
	trimmer *trimController

	cfg     Config
	id      string
	clock   Clock
	logger  *logrus.Entry
	onEvict func(key string, value interface{}, reason EvictionReason)

	loads  singleflight.Group
	maint  maintainer
	stats  counters
	closed atomic.Bool
}

// Option 构造选项
type Option func(*Cache)

// WithClock 替换时钟，测试中用于控制过期与访问时间
func WithClock(clock Clock) Option {
	return func(c *Cache) {
		c.clock = clock
	}
}

// WithLogger 指定日志条目
func WithLogger(entry *logrus.Entry) Option {
	return func(c *Cache) {
		c.logger = entry
	}
}

// WithSizeFunc 覆盖大小估算。返回负数时回退到默认估算器。
func WithSizeFunc(fn func(value interface{}) int64) Option {
	return func(c *Cache) {
		c.sizer.override = fn
	}
}

// OnEvict 条目离开缓存时的回调，在锁外调用，panic 会被捕获并记录。
func OnEvict(fn func(key string, value interface{}, reason EvictionReason)) Option {
	return func(c *Cache) {
		c.onEvict = fn
	}
}

// New 按配置创建缓存，配置无效时返回 CONFIG_INVALID 错误。
func New(cfg Config, opts ...Option) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Cache{
		store:   newEntryStore(),
		index:   newTagIndex(),
		expiry:  newExpirationEngine(cfg),
		sizer:   &sizeEstimator{},
		trimmer: &trimController{budget: cfg.MaxBytes, excludePermanent: cfg.ExcludePermanentFromTrim},
		cfg:     cfg,
		id:      uuid.NewString(),
		clock:   realClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.WithComponent("cache")
	}
	c.logger = c.logger.WithField("cache_id", c.id)

	c.logger.WithFields(logrus.Fields{
		"max_bytes":            cfg.MaxBytes,
		"maintenance_interval": cfg.MaintenanceInterval,
	}).Debug("缓存已创建")
	return c, nil
}

// ID 返回实例标识，用于日志与指标
func (c *Cache) ID() string {
	return c.id
}

// Config 返回构造时的配置
func (c *Cache) Config() Config {
	return c.cfg
}

// TryGet 读取条目。未命中返回 (nil, false)；已过期但尚未被清理的条目视为未命中并移除。
func (c *Cache) TryGet(key string) (interface{}, bool) {
	key = c.normalize(key)

	c.mu.RLock()
	e := c.store.get(key)
	c.mu.RUnlock()

	if e == nil {
		c.stats.misses.Add(1)
		return nil, false
	}

	now := c.clock.Now()
	if e.isExpired(now) {
		if c.removeIf(key, func(cur *CacheEntry) bool { return cur == e }, ReasonExpired) {
			c.stats.expirations.Add(1)
		}
		c.stats.misses.Add(1)
		return nil, false
	}

	e.touch(now)
	c.stats.hits.Add(1)
	return e.Value, true
}

// GetAs 类型化读取，类型不符视为未命中
func GetAs[T any](c *Cache, key string) (T, bool) {
	var zero T
	v, ok := c.TryGet(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Info 返回条目元数据（不更新访问时间）
func (c *Cache) Info(key string) (EntryInfo, bool) {
	key = c.normalize(key)

	c.mu.RLock()
	defer c.mu.RUnlock()

	e := c.store.get(key)
	if e == nil || e.isExpired(c.clock.Now()) {
		return EntryInfo{}, false
	}
	return e.info(), true
}

// Add 以 normal 策略写入；ttl<=0 时使用策略默认时长。
func (c *Cache) Add(key string, value interface{}, ttl time.Duration) error {
	return c.AddItem(Item{Key: key, Value: value, Policy: PolicyNormal, TTL: ttl})
}

// AddWithPolicy 按策略与标签写入，TTL 由策略推导。
func (c *Cache) AddWithPolicy(key string, value interface{}, policy Policy, tags ...string) error {
	return c.AddItem(Item{Key: key, Value: value, Policy: policy, Tags: tags})
}

// AddItem 写入条目，替换同键的旧条目及其标签，超预算时立即淘汰。
func (c *Cache) AddItem(item Item) error {
	if c.closed.Load() {
		return NewCacheError(ErrResourceClosed, "cache is closed")
	}
	key := c.normalize(item.Key)
	if key == "" {
		return NewCacheError(ErrInvalidKey, "cache key cannot be empty")
	}
	policy := item.Policy
	if policy == "" {
		policy = PolicyNormal
	}
	if !policy.Valid() {
		return NewCacheError(ErrInvalidPolicy, "unknown cache policy: "+string(policy))
	}

	size := c.estimate(key, item.Value)
	ttl := c.expiry.resolve(policy, item.TTL, size)
	now := c.clock.Now()
	e := newEntry(key, item.Value, size, policy, normalizeTags(item.Tags), now, ttl)

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return NewCacheError(ErrResourceClosed, "cache is closed")
	}
	old := c.store.put(e)
	c.index.indexTags(key, e.Tags)
	removed := c.trimLocked(now)
	c.mu.Unlock()

	if old != nil {
		removed = append(removed, removal{entry: old, reason: ReasonReplaced})
	}
	c.notify(removed)
	return nil
}

// Invalidate 移除单个键，不存在时为空操作
func (c *Cache) Invalidate(key string) bool {
	key = c.normalize(key)
	if !c.removeIf(key, nil, ReasonInvalidated) {
		return false
	}
	c.stats.invalidations.Add(1)
	return true
}

// InvalidatePattern 移除键匹配通配模式的全部条目，返回移除数量。
// 模式语法见 compilePattern。
func (c *Cache) InvalidatePattern(pattern string) (int, error) {
	p, err := compilePattern(c.normalize(pattern))
	if err != nil {
		return 0, err
	}

	c.mu.RLock()
	keys := keysMatchingPattern(c.store.keys(), p)
	c.mu.RUnlock()

	return c.removeKeys(keys, nil), nil
}

// InvalidateTag 移除携带指定标签的全部条目
func (c *Cache) InvalidateTag(tag string) int {
	c.mu.RLock()
	keys := c.index.keysForTag(tag)
	c.mu.RUnlock()

	return c.removeKeys(keys, func(e *CacheEntry) bool { return hasTag(e, tag) })
}

// InvalidateTagPattern 移除任一标签匹配通配模式的全部条目
func (c *Cache) InvalidateTagPattern(pattern string) (int, error) {
	p, err := compilePattern(pattern)
	if err != nil {
		return 0, err
	}
	return c.invalidateTagPatterns(p), nil
}

// InvalidateAllFilterCaches 移除所有由筛选查询产生的条目：
// 标签等于 FilterTag 或匹配 "FilterTag:*"。
func (c *Cache) InvalidateAllFilterCaches() int {
	exact, _ := compilePattern(escapeGlob(c.cfg.FilterTag))
	scoped, _ := compilePattern(escapeGlob(c.cfg.FilterTag+":") + "*")
	return c.invalidateTagPatterns(exact, scoped)
}

func (c *Cache) invalidateTagPatterns(patterns ...*globPattern) int {
	c.mu.RLock()
	var keys []string
	for _, p := range patterns {
		keys = append(keys, c.index.keysForTagPattern(p)...)
	}
	c.mu.RUnlock()

	return c.removeKeys(dedup(keys), func(e *CacheEntry) bool {
		for _, tag := range e.Tags {
			for _, p := range patterns {
				if p.match(tag) {
					return true
				}
			}
		}
		return false
	})
}

// Clear 清空所有条目
func (c *Cache) Clear() int {
	c.mu.Lock()
	removed := make([]removal, 0, c.store.len())
	for _, e := range c.store.entries {
		removed = append(removed, removal{entry: e, reason: ReasonInvalidated})
	}
	c.store.reset()
	c.index.reset()
	c.mu.Unlock()

	c.stats.invalidations.Add(int64(len(removed)))
	c.notify(removed)
	return len(removed)
}

// Trim 手动执行一次按预算淘汰，返回淘汰数量。未超预算时为空操作。
func (c *Cache) Trim() int {
	c.mu.Lock()
	removed := c.trimLocked(c.clock.Now())
	c.mu.Unlock()

	c.notify(removed)
	return len(removed)
}

// EstimateSize 估算值的内存占用
func (c *Cache) EstimateSize(value interface{}) int64 {
	size, _ := c.sizer.estimate(value)
	return size
}

// DetermineExpiration 返回在未显式指定 TTL 时该值会得到的过期时长；
// 第二个返回值为 false 表示永不过期。
func (c *Cache) DetermineExpiration(key string, value interface{}, policy Policy) (time.Duration, bool) {
	return c.expiry.determine(policy, c.EstimateSize(value))
}

// Stats 返回统计快照
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	entries := int64(c.store.len())
	bytes := c.store.size()
	c.mu.RUnlock()

	hits := c.stats.hits.Load()
	misses := c.stats.misses.Load()
	return CacheStats{
		Entries:          entries,
		Bytes:            bytes,
		MaxBytes:         c.cfg.MaxBytes,
		HitCount:         hits,
		MissCount:        misses,
		HitRate:          hitRate(hits, misses),
		Evictions:        c.stats.evictions.Load(),
		Expirations:      c.stats.expirations.Load(),
		Invalidations:    c.stats.invalidations.Load(),
		LastMaintenance:  c.maint.lastRun(),
		MaintenanceState: c.maint.currentState().String(),
	}
}

// Verify 全量核对总大小与标签索引，仅用于自检和测试。
func (c *Cache) Verify() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if actual := c.store.recount(); actual != c.store.size() {
		err := NewCacheError(ErrCacheCorrupted, "tracked size drifted from actual sum")
		err.WithContext("tracked", c.store.size()).WithContext("actual", actual)
		return err
	}
	for key, tags := range c.index.byKey {
		e := c.store.get(key)
		if e == nil {
			return NewCacheError(ErrCacheCorrupted, "tag index references missing key "+key)
		}
		if len(tags) != len(e.Tags) {
			return NewCacheError(ErrCacheCorrupted, "stale tag membership for key "+key)
		}
	}
	for tag, keys := range c.index.byTag {
		for key := range keys {
			e := c.store.get(key)
			if e == nil || !hasTag(e, tag) {
				return NewCacheError(ErrCacheCorrupted, "tag "+tag+" maps to key "+key+" without that tag")
			}
		}
	}
	for key, e := range c.store.entries {
		if len(e.Tags) > 0 {
			if _, ok := c.index.byKey[key]; !ok {
				return NewCacheError(ErrCacheCorrupted, "tagged key missing from index: "+key)
			}
		}
	}
	return nil
}

// Close 停止维护循环并丢弃所有条目
func (c *Cache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.maint.stop()

	c.mu.Lock()
	c.store.reset()
	c.index.reset()
	c.mu.Unlock()

	c.logger.Debug("缓存已关闭")
	return nil
}

// removeIf 在写锁下移除 key，pred 为 nil 或返回 true 时才移除
func (c *Cache) removeIf(key string, pred func(*CacheEntry) bool, reason EvictionReason) bool {
	c.mu.Lock()
	e := c.store.get(key)
	if e == nil || (pred != nil && !pred(e)) {
		c.mu.Unlock()
		return false
	}
	c.store.remove(key)
	c.index.removeKey(key)
	c.mu.Unlock()

	c.notify([]removal{{entry: e, reason: reason}})
	return true
}

// removeKeys 逐键获取写锁移除，避免长时间持锁阻塞其它读写
func (c *Cache) removeKeys(keys []string, pred func(*CacheEntry) bool) int {
	n := 0
	for _, key := range keys {
		if c.removeIf(key, pred, ReasonInvalidated) {
			n++
		}
	}
	c.stats.invalidations.Add(int64(n))
	return n
}

// trimLocked 调用方须持有写锁
func (c *Cache) trimLocked(now time.Time) []removal {
	victims := c.trimmer.selectVictims(c.store, now)
	if len(victims) == 0 {
		return nil
	}
	removed := make([]removal, 0, len(victims))
	for _, e := range victims {
		c.store.remove(e.Key)
		c.index.removeKey(e.Key)
		removed = append(removed, removal{entry: e, reason: ReasonEvicted})
	}
	c.stats.evictions.Add(int64(len(victims)))
	c.logger.WithFields(logrus.Fields{
		"evicted":   len(victims),
		"bytes":     c.store.size(),
		"max_bytes": c.cfg.MaxBytes,
	}).Debug("超出预算，已淘汰条目")
	return removed
}

func (c *Cache) notify(removed []removal) {
	if c.onEvict == nil {
		return
	}
	for _, r := range removed {
		c.safeNotify(r)
	}
}

func (c *Cache) safeNotify(r removal) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.WithFields(logrus.Fields{
				"key":    r.entry.Key,
				"reason": r.reason,
				"panic":  p,
			}).Error("淘汰回调 panic，已忽略")
		}
	}()
	c.onEvict(r.entry.Key, r.entry.Value, r.reason)
}

func (c *Cache) estimate(key string, value interface{}) int64 {
	size, err := c.sizer.estimate(value)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("大小估算失败，使用默认值")
	}
	return size
}

func (c *Cache) normalize(key string) string {
	if !c.cfg.NormalizeKeys {
		return key
	}
	return norm.NFC.String(key)
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func hasTag(e *CacheEntry, tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func dedup(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func escapeGlob(s string) string {
	var out []byte
	for i := 0; i < len(s); i++ {
		if s[i] == '*' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
