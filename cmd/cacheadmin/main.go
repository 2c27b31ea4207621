package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/sirupsen/logrus"

	"marketcache/pkg/admin"
	"marketcache/pkg/cache"
	"marketcache/pkg/config"
	"marketcache/pkg/docstore"
	"marketcache/pkg/logger"
	"marketcache/pkg/metrics"
)

var (
	configPath = flag.String("config", "", "配置文件路径 (例如 /app/config/marketcache.yaml)")
	logLevel   = flag.String("log-level", "", "日志级别，覆盖配置文件 (debug, info, warn, error)")
	redisAddr  = flag.String("redis", "", "Redis 地址，覆盖配置文件，格式 host:port")
	listenAddr = flag.String("addr", "", "管理接口监听地址，覆盖配置文件")
	noWarmUp   = flag.Bool("no-warmup", false, "跳过启动预热")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// 配置加载前的日志按环境变量初始化
		logger.GetLogger().WithError(err).Fatal("加载配置失败")
	}
	if *logLevel != "" {
		cfg.SetLogLevel(*logLevel)
	}
	if *redisAddr != "" {
		cfg.Redis.Addr = *redisAddr
	}
	if *listenAddr != "" {
		cfg.Admin.Addr = *listenAddr
	}
	if *noWarmUp {
		cfg.WarmUp.Enabled = false
	}

	logger.Init(cfg.Logger)
	log := logger.WithComponent("cacheadmin")
	log.WithField("config", cfg.String()).Info("配置已加载")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("cacheadmin 异常退出")
	}
}

func run(cfg *config.Config, log *logrus.Entry) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := cache.New(cfg.Cache.ToCache(), cache.WithLogger(logger.WithComponent("cache")))
	if err != nil {
		return err
	}
	defer c.Close()

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
		ReadTimeout: cfg.Redis.ReadTimeout,
	})
	defer client.Close()

	redisStore := docstore.NewRedisStore(client, cfg.Redis.KeyPrefix)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := redisStore.Ping(pingCtx); err != nil {
		// 存储不可达时缓存仍可用，读穿透由熔断器保护
		log.WithError(err).Warn("Redis 连接失败，继续以降级模式启动")
	}
	cancel()

	store := docstore.NewBreakerStore(redisStore, cfg.Breaker, logger.WithComponent("docstore"))
	reader := docstore.NewCachedReader(c, store, docstore.JSONDecoder)

	if cfg.WarmUp.Enabled && len(cfg.WarmUp.Rules) > 0 {
		warmUp(ctx, c, store, cfg.WarmUp, log)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c.StartMaintenance(ctx); err != nil {
			log.WithError(err).Error("维护循环启动失败")
		}
	}()

	if cfg.Influx.Enabled {
		influx := influxdb2.NewClient(cfg.Influx.URL, cfg.Influx.Token)
		defer influx.Close()
		writer := influx.WriteAPIBlocking(cfg.Influx.Org, cfg.Influx.Bucket)
		reporter := metrics.NewReporter(c, writer, cfg.Influx.Interval, logger.WithComponent("metrics"))

		wg.Add(1)
		go func() {
			defer wg.Done()
			reporter.Run(ctx)
		}()
	}

	gin.SetMode(cfg.Admin.Mode)
	srv := admin.NewServer(c, logger.WithComponent("admin"),
		admin.WithReader(reader),
		admin.WithHealthCheck("redis", redisStore.Ping),
	)
	server := &http.Server{
		Addr:              cfg.Admin.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Admin.Addr).Info("管理接口已启动")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("收到退出信号，正在关闭")
	case err := <-serveErr:
		stop()
		wg.Wait()
		return err
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("管理接口关闭失败")
	}
	wg.Wait()
	return nil
}

func warmUp(ctx context.Context, c *cache.Cache, store docstore.Store, cfg config.WarmUpConfig, log *logrus.Entry) {
	rules, err := docstore.RulesFromConfig(cfg.Rules)
	if err != nil {
		log.WithError(err).Error("预热规则无效，跳过预热")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	report, err := c.WarmUp(ctx, docstore.WarmUpSource(ctx, store, rules, docstore.JSONDecoder))
	entry := log.WithFields(logrus.Fields{
		"run_id": report.RunID,
		"loaded": report.Loaded,
		"failed": report.Failed,
	})
	if err != nil {
		entry.WithError(err).Warn("预热部分失败")
		return
	}
	entry.Info("预热完成")
}
