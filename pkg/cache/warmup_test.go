package cache

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarmUp_LoadsAll(t *testing.T) {
	c, _ := newTestCache(t, testConfig())
	items := []Item{
		{Key: "config:categories", Value: []string{"bikes", "cars"}, Policy: PolicyPermanent},
		{Key: "listing:featured", Value: []int{1, 2, 3}, Policy: PolicyPersistent, Tags: []string{"listing"}},
	}

	report, err := c.WarmUp(context.Background(), ItemsFromSlice(items))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Loaded)
	assert.Equal(t, 0, report.Failed)
	assert.NotEmpty(t, report.RunID)

	_, ok := c.TryGet("config:categories")
	assert.True(t, ok)
	assert.Equal(t, 1, c.InvalidateTag("listing"))
}

func TestWarmUp_PartialFailure(t *testing.T) {
	c, _ := newTestCache(t, testConfig())
	sourceErr := errors.New("document store timeout")

	var items iter.Seq2[Item, error] = func(yield func(Item, error) bool) {
		if !yield(Item{Key: "a", Value: 1}, nil) {
			return
		}
		if !yield(Item{}, sourceErr) {
			return
		}
		if !yield(Item{Key: "", Value: 2}, nil) {
			return
		}
		yield(Item{Key: "b", Value: 3}, nil)
	}

	report, err := c.WarmUp(context.Background(), items)
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrWarmUpPartial))
	assert.True(t, IsCode(err, ErrInvalidKey), "内层错误保留代码")
	assert.ErrorIs(t, err, sourceErr)
	assert.Equal(t, 2, report.Loaded)
	assert.Equal(t, 2, report.Failed)

	_, ok := c.TryGet("b")
	assert.True(t, ok, "失败后继续写入后续条目")
}

func TestWarmUp_StopsOnCancel(t *testing.T) {
	c, _ := newTestCache(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := c.WarmUp(ctx, ItemsFromSlice([]Item{{Key: "a", Value: 1}, {Key: "b", Value: 2}}))
	assert.True(t, IsCode(err, ErrWarmUpPartial))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "warm-up cancelled: 0 warm-up items failed, 0 loaded")
	assert.Equal(t, 0, report.Loaded)
	assert.Equal(t, int64(0), c.Stats().Entries)
}

func TestGetOrLoad_CachesResult(t *testing.T) {
	c, _ := newTestCache(t, testConfig())
	calls := 0
	load := func(ctx context.Context, key string) (interface{}, error) {
		calls++
		return "loaded:" + key, nil
	}

	opts := LoadOptions{Policy: PolicyVolatile, Tags: []string{"filter:active"}}
	v, err := c.GetOrLoad(context.Background(), "user:42", opts, load)
	require.NoError(t, err)
	assert.Equal(t, "loaded:user:42", v)

	v, err = c.GetOrLoad(context.Background(), "user:42", opts, load)
	require.NoError(t, err)
	assert.Equal(t, "loaded:user:42", v)
	assert.Equal(t, 1, calls)

	info, ok := c.Info("user:42")
	require.True(t, ok)
	assert.Equal(t, PolicyVolatile, info.Policy)
	assert.Equal(t, 1, c.InvalidateAllFilterCaches())
}

func TestGetOrLoad_Failure(t *testing.T) {
	c, _ := newTestCache(t, testConfig())
	cause := errors.New("not found upstream")

	_, err := c.GetOrLoad(context.Background(), "listing:9", LoadOptions{}, func(context.Context, string) (interface{}, error) {
		return nil, cause
	})
	assert.True(t, IsCode(err, ErrLoadFailed))
	assert.ErrorIs(t, err, cause)
	_, ok := c.TryGet("listing:9")
	assert.False(t, ok)

	_, err = c.GetOrLoad(context.Background(), "", LoadOptions{}, func(context.Context, string) (interface{}, error) {
		return 1, nil
	})
	assert.True(t, IsCode(err, ErrInvalidKey))
}

func TestGetOrLoad_CoalescesConcurrentMisses(t *testing.T) {
	c, _ := newTestCache(t, testConfig())
	var calls atomic.Int32
	release := make(chan struct{})

	load := func(ctx context.Context, key string) (interface{}, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]interface{}, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "hot", LoadOptions{}, load)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}
