package cache

import (
	"sync/atomic"
	"time"
)

// CacheStats 缓存统计快照
type CacheStats struct {
	Entries          int64     `json:"entries"`           // 当前条目数
	Bytes            int64     `json:"bytes"`             // 当前估算总大小
	MaxBytes         int64     `json:"max_bytes"`         // 大小预算
	HitCount         int64     `json:"hit_count"`         // 命中次数
	MissCount        int64     `json:"miss_count"`        // 未命中次数
	HitRate          float64   `json:"hit_rate"`          // 命中率
	Evictions        int64     `json:"evictions"`         // 因超预算被淘汰的条目数
	Expirations      int64     `json:"expirations"`       // 因过期被移除的条目数
	Invalidations    int64     `json:"invalidations"`     // 被显式失效的条目数
	LastMaintenance  time.Time `json:"last_maintenance"`  // 最后一次维护时间
	MaintenanceState string    `json:"maintenance_state"` // idle / running / stopping
}

type counters struct {
	hits          atomic.Int64
	misses        atomic.Int64
	evictions     atomic.Int64
	expirations   atomic.Int64
	invalidations atomic.Int64
}

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
