package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"marketcache/pkg/cache"
	baseerr "marketcache/pkg/error"
	"marketcache/pkg/logger"
)

// EnvPrefix 环境变量前缀，例如 MARKETCACHE_CACHE_MAX_BYTES
const EnvPrefix = "MARKETCACHE"

// Config 主配置结构
type Config struct {
	// 缓存配置
	Cache CacheConfig `mapstructure:"cache" json:"cache"`

	// 日志配置
	Logger logger.Config `mapstructure:"logger" json:"logger"`

	// 文档存储（Redis）配置
	Redis RedisConfig `mapstructure:"redis" json:"redis"`

	// 远端读取熔断配置
	Breaker BreakerConfig `mapstructure:"breaker" json:"breaker"`

	// 统计上报配置
	Influx InfluxConfig `mapstructure:"influxdb" json:"influxdb"`

	// 管理接口配置
	Admin AdminConfig `mapstructure:"admin" json:"admin"`

	// 启动预热配置
	WarmUp WarmUpConfig `mapstructure:"warmup" json:"warmup"`
}

// CacheConfig 缓存配置，字段与 cache.Config 一一对应
type CacheConfig struct {
	cache.Config `mapstructure:",squash"`
}

// ToCache 转换为缓存包使用的配置
func (c CacheConfig) ToCache() cache.Config {
	return c.Config
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr        string        `mapstructure:"addr" json:"addr"`
	Password    string        `mapstructure:"password" json:"-"`
	DB          int           `mapstructure:"db" json:"db"`
	KeyPrefix   string        `mapstructure:"key_prefix" json:"key_prefix"` // 文档键前缀，缓存键不含前缀
	DialTimeout time.Duration `mapstructure:"dial_timeout" json:"dial_timeout"`
	ReadTimeout time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	Name             string        `mapstructure:"name" json:"name"`
	MaxRequests      uint32        `mapstructure:"max_requests" json:"max_requests"`           // 半开状态允许的探测请求数
	Interval         time.Duration `mapstructure:"interval" json:"interval"`                   // 闭合状态下计数清零周期
	Timeout          time.Duration `mapstructure:"timeout" json:"timeout"`                     // 打开状态持续时间
	FailureThreshold uint32        `mapstructure:"failure_threshold" json:"failure_threshold"` // 连续失败多少次后打开
}

// InfluxConfig InfluxDB 统计上报配置
type InfluxConfig struct {
	Enabled  bool          `mapstructure:"enabled" json:"enabled"`
	URL      string        `mapstructure:"url" json:"url"`
	Token    string        `mapstructure:"token" json:"-"`
	Org      string        `mapstructure:"org" json:"org"`
	Bucket   string        `mapstructure:"bucket" json:"bucket"`
	Interval time.Duration `mapstructure:"interval" json:"interval"`
}

// AdminConfig 管理 HTTP 接口配置
type AdminConfig struct {
	Addr string `mapstructure:"addr" json:"addr"`
	Mode string `mapstructure:"mode" json:"mode"` // debug, release, test
}

// WarmUpConfig 启动预热配置
type WarmUpConfig struct {
	Enabled bool          `mapstructure:"enabled" json:"enabled"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
	Rules   []WarmUpRule  `mapstructure:"rules" json:"rules"`
}

// WarmUpRule 一条预热规则：SCAN 匹配 Match 的文档以 Policy 写入并打上 Tags
type WarmUpRule struct {
	Match  string   `mapstructure:"match" json:"match"`
	Policy string   `mapstructure:"policy" json:"policy"`
	Tags   []string `mapstructure:"tags" json:"tags"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Cache: CacheConfig{Config: cache.DefaultConfig()},
		Logger: logger.Config{
			Level:  "info",
			Format: "json",
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			DB:          0,
			DialTimeout: 5 * time.Second,
			ReadTimeout: 3 * time.Second,
		},
		Breaker: BreakerConfig{
			Name:             "docstore",
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
		Influx: InfluxConfig{
			Enabled:  false,
			URL:      "http://localhost:8086",
			Org:      "marketcache",
			Bucket:   "cache_stats",
			Interval: 15 * time.Second,
		},
		Admin: AdminConfig{
			Addr: ":8080",
			Mode: "release",
		},
		WarmUp: WarmUpConfig{
			Enabled: true,
			Timeout: 30 * time.Second,
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := c.Cache.ToCache().Validate(); err != nil {
		return err
	}

	if _, err := logrus.ParseLevel(c.Logger.Level); err != nil {
		return invalid("logger level %q is not valid", c.Logger.Level)
	}
	if c.Logger.Format != "json" && c.Logger.Format != "text" {
		return invalid("logger format must be json or text, got %q", c.Logger.Format)
	}

	if c.Redis.Addr == "" {
		return invalid("redis addr cannot be empty")
	}
	if c.Redis.DB < 0 {
		return invalid("redis db cannot be negative")
	}

	if c.Breaker.Timeout <= 0 {
		return invalid("breaker timeout must be positive")
	}
	if c.Breaker.FailureThreshold == 0 {
		return invalid("breaker failure_threshold must be positive")
	}

	if c.Influx.Enabled {
		if c.Influx.URL == "" || c.Influx.Org == "" || c.Influx.Bucket == "" {
			return invalid("influxdb url, org and bucket are required when enabled")
		}
		if c.Influx.Interval <= 0 {
			return invalid("influxdb interval must be positive")
		}
	}

	if c.Admin.Addr == "" {
		return invalid("admin addr cannot be empty")
	}
	switch c.Admin.Mode {
	case "debug", "release", "test":
	default:
		return invalid("admin mode must be debug, release or test, got %q", c.Admin.Mode)
	}

	if c.WarmUp.Timeout <= 0 {
		return invalid("warmup timeout must be positive")
	}
	for i, r := range c.WarmUp.Rules {
		if r.Match == "" {
			return invalid("warmup rule %d: match cannot be empty", i)
		}
		if _, err := cache.ParsePolicy(r.Policy); err != nil {
			return invalid("warmup rule %d: unknown policy %q", i, r.Policy)
		}
	}

	return nil
}

// SetMaxBytes 设置缓存大小预算
func (c *Config) SetMaxBytes(n int64) *Config {
	c.Cache.MaxBytes = n
	return c
}

// SetLogLevel 设置日志级别
func (c *Config) SetLogLevel(level string) *Config {
	c.Logger.Level = level
	return c
}

// Load 读取配置：默认值 < 配置文件 < 环境变量。
// path 为空时在 ./config 和当前目录查找 marketcache.yaml，找不到文件不算错误。
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("marketcache")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	cfg := Default()
	setDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, baseerr.WrapError(cache.ErrConfigInvalid, "failed to read config file", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, baseerr.WrapError(cache.ErrConfigInvalid, "failed to unmarshal config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults 注册所有标量键，AutomaticEnv 只对已知键生效
func setDefaults(v *viper.Viper, cfg *Config) {
	c := cfg.Cache
	v.SetDefault("cache.max_bytes", c.MaxBytes)
	v.SetDefault("cache.volatile_ttl", c.VolatileTTL)
	v.SetDefault("cache.normal_ttl", c.NormalTTL)
	v.SetDefault("cache.persistent_ttl", c.PersistentTTL)
	v.SetDefault("cache.large_value_bytes", c.LargeValueBytes)
	v.SetDefault("cache.large_value_ttl_factor", c.LargeValueTTLFactor)
	v.SetDefault("cache.min_ttl", c.MinTTL)
	v.SetDefault("cache.maintenance_interval", c.MaintenanceInterval)
	v.SetDefault("cache.self_check_every", c.SelfCheckEvery)
	v.SetDefault("cache.filter_tag", c.FilterTag)
	v.SetDefault("cache.exclude_permanent_from_trim", c.ExcludePermanentFromTrim)
	v.SetDefault("cache.normalize_keys", c.NormalizeKeys)

	v.SetDefault("logger.level", cfg.Logger.Level)
	v.SetDefault("logger.format", cfg.Logger.Format)

	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("redis.password", cfg.Redis.Password)
	v.SetDefault("redis.db", cfg.Redis.DB)
	v.SetDefault("redis.key_prefix", cfg.Redis.KeyPrefix)
	v.SetDefault("redis.dial_timeout", cfg.Redis.DialTimeout)
	v.SetDefault("redis.read_timeout", cfg.Redis.ReadTimeout)

	v.SetDefault("breaker.name", cfg.Breaker.Name)
	v.SetDefault("breaker.max_requests", cfg.Breaker.MaxRequests)
	v.SetDefault("breaker.interval", cfg.Breaker.Interval)
	v.SetDefault("breaker.timeout", cfg.Breaker.Timeout)
	v.SetDefault("breaker.failure_threshold", cfg.Breaker.FailureThreshold)

	v.SetDefault("influxdb.enabled", cfg.Influx.Enabled)
	v.SetDefault("influxdb.url", cfg.Influx.URL)
	v.SetDefault("influxdb.token", cfg.Influx.Token)
	v.SetDefault("influxdb.org", cfg.Influx.Org)
	v.SetDefault("influxdb.bucket", cfg.Influx.Bucket)
	v.SetDefault("influxdb.interval", cfg.Influx.Interval)

	v.SetDefault("admin.addr", cfg.Admin.Addr)
	v.SetDefault("admin.mode", cfg.Admin.Mode)

	v.SetDefault("warmup.enabled", cfg.WarmUp.Enabled)
	v.SetDefault("warmup.timeout", cfg.WarmUp.Timeout)
}

func invalid(format string, args ...interface{}) error {
	return baseerr.Newf(cache.ErrConfigInvalid, format, args...)
}

// String 输出不含密钥的摘要，用于启动日志
func (c *Config) String() string {
	return fmt.Sprintf("cache.max_bytes=%d redis=%s influx=%t admin=%s warmup_rules=%d",
		c.Cache.MaxBytes, c.Redis.Addr, c.Influx.Enabled, c.Admin.Addr, len(c.WarmUp.Rules))
}
