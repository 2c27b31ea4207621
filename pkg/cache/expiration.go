package cache

import "time"

// expirationEngine 在调用方未给出 TTL 时，按策略类别推导过期时长。
type expirationEngine struct {
	volatile   time.Duration
	normal     time.Duration
	persistent time.Duration

	largeBytes  int64
	largeFactor float64
	minTTL      time.Duration
}

func newExpirationEngine(cfg Config) *expirationEngine {
	return &expirationEngine{
		volatile:    cfg.VolatileTTL,
		normal:      cfg.NormalTTL,
		persistent:  cfg.PersistentTTL,
		largeBytes:  cfg.LargeValueBytes,
		largeFactor: cfg.LargeValueTTLFactor,
		minTTL:      cfg.MinTTL,
	}
}

// determine 返回策略对应的时长；第二个返回值为 false 表示不过期。
// size 为条目估算大小，用于大对象缩短 TTL。
func (e *expirationEngine) determine(policy Policy, size int64) (time.Duration, bool) {
	var ttl time.Duration
	switch policy {
	case PolicyPermanent:
		return 0, false
	case PolicyVolatile:
		ttl = e.volatile
	case PolicyPersistent:
		ttl = e.persistent
	default:
		ttl = e.normal
	}

	if e.largeBytes > 0 && size >= e.largeBytes {
		shortened := time.Duration(float64(ttl) * e.largeFactor)
		if shortened < e.minTTL {
			shortened = e.minTTL
		}
		if shortened < ttl {
			ttl = shortened
		}
	}
	return ttl, true
}

// resolve 合并显式 TTL 与策略推导：显式 TTL>0 时完全覆盖策略。
func (e *expirationEngine) resolve(policy Policy, explicit time.Duration, size int64) time.Duration {
	if explicit > 0 {
		return explicit
	}
	ttl, ok := e.determine(policy, size)
	if !ok {
		return 0
	}
	return ttl
}
