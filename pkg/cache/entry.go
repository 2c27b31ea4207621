package cache

import (
	"sync/atomic"
	"time"
)

// Policy 过期策略类别，描述条目的预期生命周期而不是具体时长。
type Policy string

const (
	PolicyNormal     Policy = "normal"     // 常规查询结果，分钟级
	PolicyVolatile   Policy = "volatile"   // 频繁变化的数据，秒级
	PolicyPersistent Policy = "persistent" // 参考数据，小时级
	PolicyPermanent  Policy = "permanent"  // 不过期，只能显式失效
)

// Valid 判断策略是否为已知类别
func (p Policy) Valid() bool {
	switch p {
	case PolicyNormal, PolicyVolatile, PolicyPersistent, PolicyPermanent:
		return true
	default:
		return false
	}
}

// ParsePolicy 解析策略名称，空字符串视为 normal。
func ParsePolicy(s string) (Policy, error) {
	if s == "" {
		return PolicyNormal, nil
	}
	p := Policy(s)
	if !p.Valid() {
		return "", NewCacheError(ErrInvalidPolicy, "unknown cache policy: "+s)
	}
	return p, nil
}

// CacheEntry 代表缓存中的一个条目。
// 除 accessNano 外的字段在插入后不再修改，替换条目时整体换新。
type CacheEntry struct {
	Key        string
	Value      interface{}
	Size       int64     // 插入时估算的字节数
	Policy     Policy    // 过期策略
	ExpireTime time.Time // 零值表示永不过期
	CreateTime time.Time
	Tags       []string // 去重后的标签

	accessNano atomic.Int64 // 最后访问时间（UnixNano）
}

func newEntry(key string, value interface{}, size int64, policy Policy, tags []string, now time.Time, ttl time.Duration) *CacheEntry {
	e := &CacheEntry{
		Key:        key,
		Value:      value,
		Size:       size,
		Policy:     policy,
		CreateTime: now,
		Tags:       tags,
	}
	if ttl > 0 {
		e.ExpireTime = now.Add(ttl)
	}
	e.accessNano.Store(now.UnixNano())
	return e
}

// AccessTime 返回最后访问时间
func (e *CacheEntry) AccessTime() time.Time {
	return time.Unix(0, e.accessNano.Load())
}

func (e *CacheEntry) touch(now time.Time) {
	e.accessNano.Store(now.UnixNano())
}

func (e *CacheEntry) isExpired(now time.Time) bool {
	return !e.ExpireTime.IsZero() && !now.Before(e.ExpireTime)
}

// EntryInfo 条目元数据快照，不包含值本身。
type EntryInfo struct {
	Key        string    `json:"key"`
	Size       int64     `json:"size"`
	Policy     Policy    `json:"policy"`
	ExpireTime time.Time `json:"expire_time,omitempty"`
	AccessTime time.Time `json:"access_time"`
	CreateTime time.Time `json:"create_time"`
	Tags       []string  `json:"tags,omitempty"`
}

func (e *CacheEntry) info() EntryInfo {
	tags := make([]string, len(e.Tags))
	copy(tags, e.Tags)
	return EntryInfo{
		Key:        e.Key,
		Size:       e.Size,
		Policy:     e.Policy,
		ExpireTime: e.ExpireTime,
		AccessTime: e.AccessTime(),
		CreateTime: e.CreateTime,
		Tags:       tags,
	}
}

// Item 是一次插入的完整参数，也是预热生产者产出的元组。
type Item struct {
	Key    string
	Value  interface{}
	Policy Policy        // 空值视为 normal
	TTL    time.Duration // >0 时覆盖策略推导的时长
	Tags   []string
}

// Clock 提供时间，测试中可替换为手动时钟。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}
