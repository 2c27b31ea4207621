// Package metrics 把缓存统计周期性写入 InfluxDB。
package metrics

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"marketcache/pkg/cache"
)

// Measurement 统计点的 measurement 名称
const Measurement = "cache_stats"

// PointWriter 写入数据点，api.WriteAPIBlocking 满足该接口
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// StatsSource 统计来源，*cache.Cache 满足该接口
type StatsSource interface {
	ID() string
	Stats() cache.CacheStats
}

// Reporter 统计上报器
type Reporter struct {
	source   StatsSource
	writer   PointWriter
	interval time.Duration
	logger   *logrus.Entry
	now      func() time.Time
}

// NewReporter 创建上报器
func NewReporter(source StatsSource, writer PointWriter, interval time.Duration, log *logrus.Entry) *Reporter {
	return &Reporter{
		source:   source,
		writer:   writer,
		interval: interval,
		logger:   log.WithField("cache_id", source.ID()),
		now:      time.Now,
	}
}

// Run 每个周期上报一次，直到 ctx 被取消。单次写入失败只记录日志。
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.WithField("interval", r.interval).Info("统计上报已启动")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("统计上报已停止")
			return
		case <-ticker.C:
			if err := r.Report(ctx); err != nil && ctx.Err() == nil {
				r.logger.WithError(err).Warn("写入缓存统计失败")
			}
		}
	}
}

// Report 立即上报一次
func (r *Reporter) Report(ctx context.Context) error {
	return r.writer.WritePoint(ctx, Point(r.source.ID(), r.source.Stats(), r.now()))
}

// Point 把统计快照转换为数据点
func Point(cacheID string, s cache.CacheStats, ts time.Time) *write.Point {
	p := influxdb2.NewPointWithMeasurement(Measurement).AddTag("cache_id", cacheID)
	// 空标签值在行协议中非法
	if s.MaintenanceState != "" {
		p.AddTag("maintenance_state", s.MaintenanceState)
	}
	return p.
		AddField("entries", s.Entries).
		AddField("bytes", s.Bytes).
		AddField("max_bytes", s.MaxBytes).
		AddField("hits", s.HitCount).
		AddField("misses", s.MissCount).
		AddField("hit_rate", s.HitRate).
		AddField("evictions", s.Evictions).
		AddField("expirations", s.Expirations).
		AddField("invalidations", s.Invalidations).
		SetTime(ts)
}
