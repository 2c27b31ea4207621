package cache

import (
	"time"
)

// DefaultFilterTag 是筛选查询结果默认携带的保留标签
const DefaultFilterTag = "filter"

// Config 缓存配置，构造时一次性校验。
type Config struct {
	MaxBytes int64 `mapstructure:"max_bytes" json:"max_bytes"` // 总大小预算（字节）

	VolatileTTL   time.Duration `mapstructure:"volatile_ttl" json:"volatile_ttl"`
	NormalTTL     time.Duration `mapstructure:"normal_ttl" json:"normal_ttl"`
	PersistentTTL time.Duration `mapstructure:"persistent_ttl" json:"persistent_ttl"`

	// 大对象缩短 TTL：估算大小 >= LargeValueBytes 时，策略时长乘以 LargeValueTTLFactor，
	// 但不低于 MinTTL。LargeValueBytes 为 0 时关闭。
	LargeValueBytes     int64         `mapstructure:"large_value_bytes" json:"large_value_bytes"`
	LargeValueTTLFactor float64       `mapstructure:"large_value_ttl_factor" json:"large_value_ttl_factor"`
	MinTTL              time.Duration `mapstructure:"min_ttl" json:"min_ttl"`

	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval" json:"maintenance_interval"`
	SelfCheckEvery      int           `mapstructure:"self_check_every" json:"self_check_every"` // 每 N 次维护做一次一致性自检，0 关闭

	FilterTag                string `mapstructure:"filter_tag" json:"filter_tag"`
	ExcludePermanentFromTrim bool   `mapstructure:"exclude_permanent_from_trim" json:"exclude_permanent_from_trim"`
	NormalizeKeys            bool   `mapstructure:"normalize_keys" json:"normalize_keys"` // 键做 Unicode NFC 归一化
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxBytes:            64 << 20,
		VolatileTTL:         30 * time.Second,
		NormalTTL:           5 * time.Minute,
		PersistentTTL:       2 * time.Hour,
		LargeValueBytes:     1 << 20,
		LargeValueTTLFactor: 0.5,
		MinTTL:              5 * time.Second,
		MaintenanceInterval: 30 * time.Second,
		FilterTag:           DefaultFilterTag,
	}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.MaxBytes <= 0 {
		return configError("max_bytes must be positive, got %d", c.MaxBytes)
	}
	if c.VolatileTTL <= 0 || c.NormalTTL <= 0 || c.PersistentTTL <= 0 {
		return configError("policy durations must be positive (volatile=%s normal=%s persistent=%s)",
			c.VolatileTTL, c.NormalTTL, c.PersistentTTL)
	}
	if c.VolatileTTL > c.NormalTTL || c.NormalTTL > c.PersistentTTL {
		return configError("policy durations must satisfy volatile <= normal <= persistent")
	}
	if c.MaintenanceInterval <= 0 {
		return configError("maintenance_interval must be positive, got %s", c.MaintenanceInterval)
	}
	if c.LargeValueBytes < 0 {
		return configError("large_value_bytes cannot be negative")
	}
	if c.LargeValueBytes > 0 {
		if c.LargeValueTTLFactor <= 0 || c.LargeValueTTLFactor > 1 {
			return configError("large_value_ttl_factor must be in (0, 1], got %v", c.LargeValueTTLFactor)
		}
		if c.MinTTL <= 0 {
			return configError("min_ttl must be positive when large_value_bytes is set")
		}
	}
	if c.SelfCheckEvery < 0 {
		return configError("self_check_every cannot be negative")
	}
	if c.FilterTag == "" {
		return configError("filter_tag cannot be empty")
	}
	return nil
}
