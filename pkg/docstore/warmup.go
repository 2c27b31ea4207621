package docstore

import (
	"context"
	"fmt"
	"iter"

	"marketcache/pkg/cache"
	"marketcache/pkg/config"
	baseerr "marketcache/pkg/error"
)

// Rule 预热规则：匹配 Match 的文档以 Policy 写入并打上 Tags
type Rule struct {
	Match  string
	Policy cache.Policy
	Tags   []string
}

// RulesFromConfig 把配置中的预热规则转换为 Rule
func RulesFromConfig(rules []config.WarmUpRule) ([]Rule, error) {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		policy, err := cache.ParsePolicy(r.Policy)
		if err != nil {
			return nil, err
		}
		out = append(out, Rule{Match: r.Match, Policy: policy, Tags: r.Tags})
	}
	return out, nil
}

// WarmUpSource 按规则依次扫描存储并产出预热条目。
// 扫描或读取失败以错误元组产出，由 Cache.WarmUp 汇总；
// 扫描与读取之间被删除的文档直接跳过。
func WarmUpSource(ctx context.Context, store Store, rules []Rule, decode Decoder) iter.Seq2[cache.Item, error] {
	if decode == nil {
		decode = RawDecoder
	}
	return func(yield func(cache.Item, error) bool) {
		for _, rule := range rules {
			keys, err := store.Keys(ctx, rule.Match)
			if err != nil {
				if !yield(cache.Item{}, fmt.Errorf("scan %q: %w", rule.Match, err)) {
					return
				}
				continue
			}
			for _, key := range keys {
				raw, err := store.Get(ctx, key)
				if baseerr.HasCode(err, ErrNotFound) {
					continue
				}
				if err != nil {
					if !yield(cache.Item{}, err) {
						return
					}
					continue
				}
				value, err := decode(key, raw)
				if err != nil {
					if !yield(cache.Item{}, fmt.Errorf("decode %q: %w", key, err)) {
						return
					}
					continue
				}
				item := cache.Item{Key: key, Value: value, Policy: rule.Policy, Tags: rule.Tags}
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}
