// Package docstore 是缓存背后的远端文档存储：Redis 读取、熔断保护、
// 以缓存为前置的读穿透，以及为预热提供条目序列。
package docstore

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/go-redis/redis/v8"

	baseerr "marketcache/pkg/error"
)

const (
	// ErrNotFound 文档不存在
	ErrNotFound baseerr.ErrorCode = "NOT_FOUND"
	// ErrStoreUnavailable 存储不可达或熔断打开
	ErrStoreUnavailable baseerr.ErrorCode = "STORE_UNAVAILABLE"
)

// Store 只读文档存储
type Store interface {
	// Get 读取原始文档，不存在时返回 NOT_FOUND
	Get(ctx context.Context, key string) ([]byte, error)
	// Keys 返回匹配 Redis glob 模式的全部键，按字典序排列
	Keys(ctx context.Context, match string) ([]string, error)
}

// RedisStore 基于 go-redis 的文档存储。
// prefix 仅存在于 Redis 侧，对调用方透明。
type RedisStore struct {
	client   redis.UniversalClient
	prefix   string
	scanSize int64
}

// NewRedisStore 创建 Redis 文档存储
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, scanSize: 100}
}

// Get 读取文档
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		e := baseerr.NewError(ErrNotFound, "document not found")
		e.WithContext("key", key)
		return nil, e
	}
	if err != nil {
		return nil, baseerr.WrapError(ErrStoreUnavailable, "redis get "+key, err)
	}
	return raw, nil
}

// Keys 用 SCAN 遍历匹配的键，避免 KEYS 阻塞服务端
func (s *RedisStore) Keys(ctx context.Context, match string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+match, s.scanSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, baseerr.WrapError(ErrStoreUnavailable, "redis scan "+match, err)
	}
	// SCAN 可能返回重复键
	sort.Strings(keys)
	out := keys[:0]
	for i, k := range keys {
		if i == 0 || k != keys[i-1] {
			out = append(out, k)
		}
	}
	return out, nil
}

// Ping 检查连接
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return baseerr.WrapError(ErrStoreUnavailable, "redis ping", err)
	}
	return nil
}
