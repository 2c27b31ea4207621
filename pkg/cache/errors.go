package cache

import (
	baseerr "marketcache/pkg/error"
)

// CacheError 缓存服务的错误类型
type CacheError struct {
	baseerr.BaseError
}

const (
	// ErrConfigInvalid 表示构造缓存时配置无效。
	ErrConfigInvalid baseerr.ErrorCode = "CONFIG_INVALID"
	// ErrInvalidKey 表示键为空。
	ErrInvalidKey baseerr.ErrorCode = "INVALID_KEY"
	// ErrInvalidPolicy 表示未知的过期策略。
	ErrInvalidPolicy baseerr.ErrorCode = "INVALID_POLICY"
	// ErrInvalidPattern 表示通配模式语法错误。
	ErrInvalidPattern baseerr.ErrorCode = "INVALID_PATTERN"
	// ErrMaintenanceRunning 表示该实例已有维护循环在运行。
	ErrMaintenanceRunning baseerr.ErrorCode = "MAINTENANCE_RUNNING"
	// ErrWarmUpPartial 表示预热过程中部分条目失败。
	ErrWarmUpPartial baseerr.ErrorCode = "WARMUP_PARTIAL"
	// ErrCacheCorrupted 表示内部账目（总大小、标签索引）不一致。
	ErrCacheCorrupted baseerr.ErrorCode = "CACHE_CORRUPTED"
	// ErrLoadFailed 表示回源加载失败。
	ErrLoadFailed baseerr.ErrorCode = "LOAD_FAILED"
	// ErrResourceClosed 表示缓存已关闭。
	ErrResourceClosed baseerr.ErrorCode = "RESOURCE_CLOSED"
)

// NewCacheError 创建缓存错误
func NewCacheError(code baseerr.ErrorCode, message string) *CacheError {
	return &CacheError{
		BaseError: *baseerr.NewError(code, message),
	}
}

// WrapCacheError 包装底层错误
func WrapCacheError(code baseerr.ErrorCode, message string, cause error) *CacheError {
	return &CacheError{
		BaseError: *baseerr.WrapError(code, message, cause),
	}
}

// IsCode 判断错误链中是否包含指定代码
func IsCode(err error, code baseerr.ErrorCode) bool {
	return baseerr.HasCode(err, code)
}

func configError(format string, args ...interface{}) *CacheError {
	return &CacheError{BaseError: *baseerr.Newf(ErrConfigInvalid, format, args...)}
}
