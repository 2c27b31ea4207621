package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEntryStore_PutReplaceRemove(t *testing.T) {
	s := newEntryStore()
	now := time.Now()

	assert.Nil(t, s.put(newEntry("a", "v1", 100, PolicyNormal, nil, now, time.Minute)))
	assert.Nil(t, s.put(newEntry("b", "v2", 50, PolicyNormal, nil, now, time.Minute)))
	assert.Equal(t, int64(150), s.size())

	// 替换返回旧条目并调整总大小
	old := s.put(newEntry("a", "v3", 30, PolicyNormal, nil, now, time.Minute))
	if assert.NotNil(t, old) {
		assert.Equal(t, "v1", old.Value)
	}
	assert.Equal(t, int64(80), s.size())
	assert.Equal(t, 2, s.len())

	removed, ok := s.remove("a")
	assert.True(t, ok)
	assert.Equal(t, "v3", removed.Value)
	assert.Equal(t, int64(50), s.size())

	_, ok = s.remove("a")
	assert.False(t, ok)
	assert.Equal(t, s.recount(), s.size())
	assert.ElementsMatch(t, []string{"b"}, s.keys())
}

func TestEntry_Expiry(t *testing.T) {
	now := time.Now()
	e := newEntry("k", 1, 8, PolicyNormal, nil, now, time.Second)
	assert.True(t, e.ExpireTime.After(e.CreateTime))
	assert.False(t, e.isExpired(now))
	assert.True(t, e.isExpired(now.Add(time.Second)))

	permanent := newEntry("p", 1, 8, PolicyPermanent, nil, now, 0)
	assert.True(t, permanent.ExpireTime.IsZero())
	assert.False(t, permanent.isExpired(now.Add(100*365*24*time.Hour)))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	assert.NoError(t, err)
	assert.Equal(t, PolicyNormal, p)

	p, err = ParsePolicy("persistent")
	assert.NoError(t, err)
	assert.Equal(t, PolicyPersistent, p)

	_, err = ParsePolicy("forever")
	assert.True(t, IsCode(err, ErrInvalidPolicy))
}
