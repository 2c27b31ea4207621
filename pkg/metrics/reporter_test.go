package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcache/pkg/cache"
	"marketcache/pkg/logger"
)

type fakeWriter struct {
	mu     sync.Mutex
	points []*write.Point
	err    error
}

func (f *fakeWriter) WritePoint(_ context.Context, points ...*write.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.points = append(f.points, points...)
	return nil
}

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points)
}

type staticSource struct {
	stats cache.CacheStats
}

func (s staticSource) ID() string              { return "cache-1" }
func (s staticSource) Stats() cache.CacheStats { return s.stats }

func TestPoint_LineProtocol(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	stats := cache.CacheStats{
		Entries:          3,
		Bytes:            900,
		MaxBytes:         1000,
		HitCount:         4,
		MissCount:        1,
		HitRate:          0.8,
		Evictions:        2,
		MaintenanceState: "running",
	}

	line := write.PointToLineProtocol(Point("cache-1", stats, ts), time.Second)
	assert.Contains(t, line, "cache_stats,cache_id=cache-1,maintenance_state=running ")
	assert.Contains(t, line, "entries=3i")
	assert.Contains(t, line, "bytes=900i")
	assert.Contains(t, line, "hit_rate=0.8")
	assert.Contains(t, line, "evictions=2i")
	assert.Contains(t, line, " 1700000000")
}

func TestReporter_ReportFromCache(t *testing.T) {
	c, err := cache.New(cache.DefaultConfig(), cache.WithLogger(logger.Discard()))
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Add("k", "v", 0))
	c.TryGet("k")

	w := &fakeWriter{}
	r := NewReporter(c, w, time.Minute, logger.Discard())
	require.NoError(t, r.Report(context.Background()))

	require.Len(t, w.points, 1)
	line := write.PointToLineProtocol(w.points[0], time.Nanosecond)
	assert.Contains(t, line, "cache_id="+c.ID())
	assert.Contains(t, line, "entries=1i")
	assert.Contains(t, line, "hits=1i")
}

func TestReporter_RunUntilCancelled(t *testing.T) {
	w := &fakeWriter{}
	r := NewReporter(staticSource{}, w, 5*time.Millisecond, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return w.count() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("上报循环未退出")
	}
}

func TestReporter_WriteErrorDoesNotStopLoop(t *testing.T) {
	w := &fakeWriter{err: errors.New("influx down")}
	r := NewReporter(staticSource{}, w, 5*time.Millisecond, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	w.mu.Lock()
	w.err = nil
	w.mu.Unlock()

	require.Eventually(t, func() bool { return w.count() >= 1 }, time.Second, time.Millisecond)
	cancel()
	<-done
}
