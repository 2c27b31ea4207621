package cache

import (
	"context"
	"time"
)

// Loader 在未命中时回源加载值
type Loader func(ctx context.Context, key string) (interface{}, error)

// LoadOptions 回源结果写入缓存时使用的参数
type LoadOptions struct {
	Policy Policy
	TTL    time.Duration
	Tags   []string
}

// GetOrLoad 命中则直接返回，否则调用 load 并写入缓存。
// 同一键的并发未命中只会触发一次 load。加载期间不持有缓存锁。
func (c *Cache) GetOrLoad(ctx context.Context, key string, opts LoadOptions, load Loader) (interface{}, error) {
	if v, ok := c.TryGet(key); ok {
		return v, nil
	}
	if c.normalize(key) == "" {
		return nil, NewCacheError(ErrInvalidKey, "cache key cannot be empty")
	}

	v, err, _ := c.loads.Do(c.normalize(key), func() (interface{}, error) {
		value, err := load(ctx, key)
		if err != nil {
			return nil, WrapCacheError(ErrLoadFailed, "load "+key, err)
		}
		if err := c.AddItem(Item{
			Key:    key,
			Value:  value,
			Policy: opts.Policy,
			TTL:    opts.TTL,
			Tags:   opts.Tags,
		}); err != nil {
			return nil, err
		}
		return value, nil
	})
	return v, err
}
