package cache

import (
	"sort"
	"time"
)

// trimController 在总大小超出预算时挑选淘汰条目。
type trimController struct {
	budget           int64
	excludePermanent bool
}

type trimCandidate struct {
	entry *CacheEntry
	score float64
}

// evictionScore 越大越先被淘汰：越冷、越大的条目分数越高。
// 加 1ms 让刚访问过的条目仍按大小区分。
func evictionScore(e *CacheEntry, now time.Time) float64 {
	idle := now.Sub(e.AccessTime())
	if idle < 0 {
		idle = 0
	}
	return float64(idle+time.Millisecond) * float64(e.Size)
}

// selectVictims 返回按淘汰顺序排列的最少条目集合，移除它们后总大小不超过预算。
// 未超预算时返回 nil。永久条目排在所有非永久条目之后，或在配置下完全不参与。
// 调用方须持有写锁。
func (t *trimController) selectVictims(s *entryStore, now time.Time) []*CacheEntry {
	total := s.size()
	if total <= t.budget {
		return nil
	}

	var regular, permanent []trimCandidate
	for _, e := range s.entries {
		c := trimCandidate{entry: e, score: evictionScore(e, now)}
		if e.Policy == PolicyPermanent {
			if !t.excludePermanent {
				permanent = append(permanent, c)
			}
			continue
		}
		regular = append(regular, c)
	}
	sortCandidates(regular, t.budget)
	sortCandidates(permanent, t.budget)

	var victims []*CacheEntry
	for _, group := range [][]trimCandidate{regular, permanent} {
		for _, c := range group {
			if total <= t.budget {
				return victims
			}
			victims = append(victims, c.entry)
			total -= c.entry.Size
		}
	}
	return victims
}

// sortCandidates 单个就超出预算的条目排在组内最前：它们留在缓存里总大小不可能达标，
// 先淘汰它们避免连带淘汰其他条目。其余按分数降序。
func sortCandidates(cs []trimCandidate, budget int64) {
	sort.Slice(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if ao, bo := a.entry.Size > budget, b.entry.Size > budget; ao != bo {
			return ao
		}
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.entry.CreateTime.Equal(b.entry.CreateTime) {
			return a.entry.CreateTime.Before(b.entry.CreateTime)
		}
		return a.entry.Key < b.entry.Key
	})
}
