package docstore

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"marketcache/pkg/config"
	baseerr "marketcache/pkg/error"
)

// BreakerStore 熔断器装饰器，使用 sony/gobreaker 保护远端读取。
// 文档不存在与调用方取消不计为失败。
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerStore 创建熔断器装饰器
func NewBreakerStore(next Store, cfg config.BreakerConfig, log *logrus.Entry) *BreakerStore {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				baseerr.HasCode(err, ErrNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("文档存储熔断器状态变更")
		},
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Get 通过熔断器读取文档
func (b *BreakerStore) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Get(ctx, key)
	})
	if err != nil {
		return nil, b.translate(err)
	}
	return result.([]byte), nil
}

// Keys 通过熔断器列举键
func (b *BreakerStore) Keys(ctx context.Context, match string) ([]string, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Keys(ctx, match)
	})
	if err != nil {
		return nil, b.translate(err)
	}
	return result.([]string), nil
}

// State 返回熔断器当前状态
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerStore) translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return baseerr.WrapError(ErrStoreUnavailable, "circuit breaker "+b.cb.Name()+" rejected the call", err)
	}
	return err
}
