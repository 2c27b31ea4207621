package cache

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// WarmUpReport 预热结果
type WarmUpReport struct {
	RunID    string        `json:"run_id"`
	Loaded   int           `json:"loaded"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// WarmUp 从调用方提供的序列批量写入条目。
// 缓存本身不知道该预热什么，items 由持有领域知识的一方提供，可以在迭代中做 I/O；
// 迭代期间不持有任何内部锁。单个条目失败不会中断预热，全部失败在结束后以
// WARMUP_PARTIAL 一并返回。
func (c *Cache) WarmUp(ctx context.Context, items iter.Seq2[Item, error]) (WarmUpReport, error) {
	report := WarmUpReport{RunID: uuid.NewString()}
	started := time.Now()
	log := c.logger.WithField("warmup_run", report.RunID)

	var errs []error
	cancelled := false
	seq := 0
	for item, err := range items {
		seq++
		if ctxErr := ctx.Err(); ctxErr != nil {
			errs = append(errs, fmt.Errorf("warm-up cancelled after %d items: %w", seq-1, ctxErr))
			cancelled = true
			break
		}
		if err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("warm-up item %d: %w", seq, err))
			log.WithError(err).WithField("item", seq).Warn("预热条目生成失败")
			continue
		}
		if err := c.AddItem(item); err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("warm-up key %q: %w", item.Key, err))
			log.WithError(err).WithField("key", item.Key).Warn("预热条目写入失败")
			continue
		}
		report.Loaded++
	}
	report.Duration = time.Since(started)

	log.WithFields(logrus.Fields{
		"loaded":   report.Loaded,
		"failed":   report.Failed,
		"duration": report.Duration,
	}).Info("缓存预热完成")

	if len(errs) > 0 {
		msg := fmt.Sprintf("%d warm-up items failed, %d loaded", report.Failed, report.Loaded)
		if cancelled {
			msg = "warm-up cancelled: " + msg
		}
		return report, WrapCacheError(ErrWarmUpPartial, msg, errors.Join(errs...))
	}
	return report, nil
}

// ItemsFromSlice 把固定条目列表包装成预热序列
func ItemsFromSlice(items []Item) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		for _, it := range items {
			if !yield(it, nil) {
				return
			}
		}
	}
}
