package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// MaintenanceState 维护循环状态：Idle -> Running -> Stopping -> Idle
type MaintenanceState int32

const (
	MaintenanceIdle MaintenanceState = iota
	MaintenanceRunning
	MaintenanceStopping
)

func (s MaintenanceState) String() string {
	switch s {
	case MaintenanceRunning:
		return "running"
	case MaintenanceStopping:
		return "stopping"
	default:
		return "idle"
	}
}

// MaintenanceReport 单次维护的结果
type MaintenanceReport struct {
	Expired     int           `json:"expired"`
	Evicted     int           `json:"evicted"`
	Interrupted bool          `json:"interrupted"` // 因取消而提前结束
	Duration    time.Duration `json:"duration"`
}

type maintainer struct {
	state   atomic.Int32
	ticks   atomic.Int64
	lastNs  atomic.Int64
	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

func (m *maintainer) currentState() MaintenanceState {
	return MaintenanceState(m.state.Load())
}

func (m *maintainer) lastRun() time.Time {
	ns := m.lastNs.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// stop 取消正在运行的维护循环并等待其退出
func (m *maintainer) stop() {
	m.mu.Lock()
	cancel, stopped := m.cancel, m.stopped
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-stopped
	}
}

// intervalSchedule 固定间隔调度。cron.Every 会把间隔取整到秒，这里保留原始精度。
type intervalSchedule time.Duration

func (s intervalSchedule) Next(t time.Time) time.Time {
	return t.Add(time.Duration(s))
}

// StartMaintenance 启动后台维护循环并阻塞到 ctx 被取消。
// 每个周期先清理过期条目，再按预算淘汰。同一实例同时只能运行一个循环。
func (c *Cache) StartMaintenance(ctx context.Context) error {
	if c.closed.Load() {
		return NewCacheError(ErrResourceClosed, "cache is closed")
	}
	ctx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})

	// 状态切换与取消函数登记在同一把锁下完成，Close 看到 Running 时一定能取消循环
	c.maint.mu.Lock()
	if !c.maint.state.CompareAndSwap(int32(MaintenanceIdle), int32(MaintenanceRunning)) {
		c.maint.mu.Unlock()
		cancel()
		return NewCacheError(ErrMaintenanceRunning, "maintenance loop already running for this cache")
	}
	c.maint.cancel, c.maint.stopped = cancel, stopped
	c.maint.mu.Unlock()

	if c.closed.Load() {
		cancel()
	}

	defer func() {
		c.maint.mu.Lock()
		c.maint.cancel, c.maint.stopped = nil, nil
		c.maint.mu.Unlock()
		c.maint.state.Store(int32(MaintenanceIdle))
		close(stopped)
	}()

	log := c.logger.WithField("interval", c.cfg.MaintenanceInterval)
	cl := cronLogger{entry: log}
	sched := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	sched.Schedule(intervalSchedule(c.cfg.MaintenanceInterval), cron.FuncJob(func() {
		c.maintenanceTick(ctx)
	}))
	sched.Start()
	log.Info("缓存维护循环已启动")

	<-ctx.Done()
	c.maint.state.Store(int32(MaintenanceStopping))
	cancel()

	// 等待进行中的周期结束；周期内部在条目之间检查 ctx
	<-sched.Stop().Done()
	log.Info("缓存维护循环已停止")
	return nil
}

func (c *Cache) maintenanceTick(ctx context.Context) {
	report := c.RunMaintenance(ctx)
	fields := logrus.Fields{
		"expired":  report.Expired,
		"evicted":  report.Evicted,
		"duration": report.Duration,
	}
	if report.Interrupted {
		c.logger.WithFields(fields).Info("维护周期被取消")
		return
	}
	c.logger.WithFields(fields).Debug("维护周期完成")
}

// RunMaintenance 同步执行一次维护：清理过期条目，然后按预算淘汰。
func (c *Cache) RunMaintenance(ctx context.Context) MaintenanceReport {
	started := time.Now()
	now := c.clock.Now()
	report := MaintenanceReport{}

	report.Expired, report.Interrupted = c.sweepExpired(ctx, now)
	if !report.Interrupted {
		report.Evicted = c.Trim()
	}

	tick := c.maint.ticks.Add(1)
	if every := int64(c.cfg.SelfCheckEvery); every > 0 && tick%every == 0 {
		if err := c.Verify(); err != nil {
			c.logger.WithError(err).Error("缓存一致性自检失败")
		}
	}

	c.maint.lastNs.Store(now.UnixNano())
	report.Duration = time.Since(started)
	return report
}

// sweepExpired 在读锁下收集过期键，再逐个在写锁下复核并移除
func (c *Cache) sweepExpired(ctx context.Context, now time.Time) (int, bool) {
	c.mu.RLock()
	var expired []*CacheEntry
	for _, e := range c.store.entries {
		if e.isExpired(now) {
			expired = append(expired, e)
		}
	}
	c.mu.RUnlock()

	n := 0
	for _, e := range expired {
		if ctx.Err() != nil {
			c.stats.expirations.Add(int64(n))
			return n, true
		}
		target := e
		if c.removeIf(e.Key, func(cur *CacheEntry) bool { return cur == target }, ReasonExpired) {
			n++
		}
	}
	c.stats.expirations.Add(int64(n))
	return n, false
}

// cronLogger 把 cron 的日志转发到 logrus
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithError(err).WithFields(kvFields(keysAndValues)).Error("cron: " + msg)
}

func kvFields(kv []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			fields[k] = kv[i+1]
		}
	}
	return fields
}
