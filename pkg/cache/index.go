package cache

import (
	"strings"
)

// tagIndex 维护 tag -> keys 的反向索引以及 key -> tags 的正向索引，
// 与 entryStore 在同一把锁下修改。
type tagIndex struct {
	byTag map[string]map[string]struct{}
	byKey map[string][]string
}

func newTagIndex() *tagIndex {
	return &tagIndex{
		byTag: make(map[string]map[string]struct{}),
		byKey: make(map[string][]string),
	}
}

// indexTags 用新标签集替换 key 原有的全部标签
func (idx *tagIndex) indexTags(key string, tags []string) {
	idx.removeKey(key)
	if len(tags) == 0 {
		return
	}
	for _, tag := range tags {
		keys, ok := idx.byTag[tag]
		if !ok {
			keys = make(map[string]struct{})
			idx.byTag[tag] = keys
		}
		keys[key] = struct{}{}
	}
	idx.byKey[key] = tags
}

func (idx *tagIndex) removeKey(key string) {
	tags, ok := idx.byKey[key]
	if !ok {
		return
	}
	for _, tag := range tags {
		if keys, ok := idx.byTag[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(idx.byTag, tag)
			}
		}
	}
	delete(idx.byKey, key)
}

func (idx *tagIndex) keysForTag(tag string) []string {
	keys := idx.byTag[tag]
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	return out
}

// keysForTagPattern 返回标签匹配模式的所有键（去重）
func (idx *tagIndex) keysForTagPattern(p *globPattern) []string {
	seen := make(map[string]struct{})
	for tag, keys := range idx.byTag {
		if !p.match(tag) {
			continue
		}
		for k := range keys {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	return out
}

func (idx *tagIndex) reset() {
	idx.byTag = make(map[string]map[string]struct{})
	idx.byKey = make(map[string][]string)
}

// keysMatchingPattern 在给定键集合上做通配匹配
func keysMatchingPattern(keys []string, p *globPattern) []string {
	var out []string
	for _, k := range keys {
		if p.match(k) {
			out = append(out, k)
		}
	}
	return out
}

// globPattern 单通配符模式：至少零个字符的 '*' 最多出现一次。
// '\*' 与 '\\' 为转义；不含 '*' 的模式为精确匹配。
type globPattern struct {
	prefix   string
	suffix   string
	wildcard bool
}

func compilePattern(pattern string) (*globPattern, error) {
	var (
		b        strings.Builder
		p        globPattern
		escaping bool
	)
	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		switch {
		case escaping:
			if ch != '*' && ch != '\\' {
				return nil, patternError(pattern, "only '*' and '\\' can be escaped")
			}
			b.WriteByte(ch)
			escaping = false
		case ch == '\\':
			escaping = true
		case ch == '*':
			if p.wildcard {
				return nil, patternError(pattern, "at most one wildcard is supported")
			}
			p.wildcard = true
			p.prefix = b.String()
			b.Reset()
		default:
			b.WriteByte(ch)
		}
	}
	if escaping {
		return nil, patternError(pattern, "trailing escape character")
	}
	if p.wildcard {
		p.suffix = b.String()
	} else {
		p.prefix = b.String()
	}
	return &p, nil
}

func (p *globPattern) match(s string) bool {
	if !p.wildcard {
		return s == p.prefix
	}
	return len(s) >= len(p.prefix)+len(p.suffix) &&
		strings.HasPrefix(s, p.prefix) &&
		strings.HasSuffix(s, p.suffix)
}

func patternError(pattern, reason string) error {
	err := NewCacheError(ErrInvalidPattern, reason)
	err.WithContext("pattern", pattern)
	return err
}
