package docstore

import (
	"context"
	"encoding/json"

	"marketcache/pkg/cache"
)

// Decoder 把原始文档转换为缓存值
type Decoder func(key string, raw []byte) (interface{}, error)

// RawDecoder 原样保存字节
func RawDecoder(_ string, raw []byte) (interface{}, error) {
	return raw, nil
}

// JSONDecoder 解析为通用 JSON 值
func JSONDecoder(_ string, raw []byte) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// CachedReader 以缓存为前置的读穿透：命中直接返回，未命中从存储读取并写回缓存。
// 同一键的并发未命中合并为一次存储读取。
type CachedReader struct {
	cache  *cache.Cache
	store  Store
	decode Decoder
}

// NewCachedReader 创建读穿透读取器，decode 为 nil 时使用 RawDecoder
func NewCachedReader(c *cache.Cache, store Store, decode Decoder) *CachedReader {
	if decode == nil {
		decode = RawDecoder
	}
	return &CachedReader{cache: c, store: store, decode: decode}
}

// Get 读取文档
func (r *CachedReader) Get(ctx context.Context, key string, opts cache.LoadOptions) (interface{}, error) {
	return r.cache.GetOrLoad(ctx, key, opts, func(ctx context.Context, key string) (interface{}, error) {
		raw, err := r.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		return r.decode(key, raw)
	})
}
