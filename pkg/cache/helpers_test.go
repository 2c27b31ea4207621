package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketcache/pkg/logger"
)

// manualClock 手动推进的时钟
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (m *manualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *manualClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// blob 声明固定大小的测试值
type blob int64

func (b blob) CacheSize() int64 { return int64(b) }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxBytes = 1 << 20
	cfg.MaintenanceInterval = 10 * time.Millisecond
	cfg.LargeValueBytes = 0
	return cfg
}

func newTestCache(t *testing.T, cfg Config, opts ...Option) (*Cache, *manualClock) {
	t.Helper()
	clock := newManualClock()
	opts = append([]Option{WithClock(clock), WithLogger(logger.Discard())}, opts...)
	c, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, clock
}
