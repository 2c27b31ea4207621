package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpirationEngine_Defaults(t *testing.T) {
	e := newExpirationEngine(DefaultConfig())

	tests := []struct {
		policy Policy
		ttl    time.Duration
		ok     bool
	}{
		{PolicyVolatile, 30 * time.Second, true},
		{PolicyNormal, 5 * time.Minute, true},
		{PolicyPersistent, 2 * time.Hour, true},
		{PolicyPermanent, 0, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			ttl, ok := e.determine(tt.policy, 10)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.ttl, ttl)
		})
	}
}

func TestExpirationEngine_LargeValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LargeValueBytes = 1000
	cfg.LargeValueTTLFactor = 0.5
	cfg.MinTTL = 20 * time.Second
	e := newExpirationEngine(cfg)

	ttl, _ := e.determine(PolicyNormal, 999)
	assert.Equal(t, 5*time.Minute, ttl, "低于阈值不缩短")

	ttl, _ = e.determine(PolicyNormal, 1000)
	assert.Equal(t, 150*time.Second, ttl)

	// 30s * 0.5 = 15s，受 MinTTL 下限约束
	ttl, _ = e.determine(PolicyVolatile, 5000)
	assert.Equal(t, 20*time.Second, ttl)

	_, ok := e.determine(PolicyPermanent, 5000)
	assert.False(t, ok, "永久条目不受大对象规则影响")
}

func TestExpirationEngine_ExplicitOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LargeValueBytes = 10
	e := newExpirationEngine(cfg)

	assert.Equal(t, time.Hour, e.resolve(PolicyVolatile, time.Hour, 1<<20))
	assert.Equal(t, time.Second, e.resolve(PolicyPermanent, time.Second, 0))
	assert.Equal(t, time.Duration(0), e.resolve(PolicyPermanent, 0, 0))
	assert.Equal(t, 5*time.Minute, e.resolve(PolicyNormal, 0, 0))
}

func TestCache_DetermineExpiration(t *testing.T) {
	cfg := testConfig()
	cfg.LargeValueBytes = 100
	cfg.LargeValueTTLFactor = 0.1
	cfg.MinTTL = time.Second
	c, _ := newTestCache(t, cfg)

	ttl, ok := c.DetermineExpiration("listing:1", blob(10), PolicyNormal)
	assert.True(t, ok)
	assert.Equal(t, 5*time.Minute, ttl)

	ttl, ok = c.DetermineExpiration("listing:1", blob(500), PolicyNormal)
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, ttl)

	_, ok = c.DetermineExpiration("config:categories", blob(500), PolicyPermanent)
	assert.False(t, ok)
}
