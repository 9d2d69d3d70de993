package cache

import (
	"testing"
	"time"

	domaincache "evaluation_reminders/internal/domain/cache"

	"github.com/stretchr/testify/assert"
)

var _ domaincache.Cache = (*MemoryCache)(nil)

func TestMemoryCacheSetGetDelete(t *testing.T) {
	c := NewMemoryCache(time.Minute)

	c.Set("metrics_prof:1:all", 0.5, 0)
	c.Set("history_prof:1", "h", time.Minute)

	v, ok := c.Get("metrics_prof:1:all")
	assert.True(t, ok)
	assert.Equal(t, 0.5, v)

	c.Delete("metrics_prof:1:all", "history_prof:1", "missing")
	_, ok = c.Get("metrics_prof:1:all")
	assert.False(t, ok)
	_, ok = c.Get("history_prof:1")
	assert.False(t, ok)
}

func TestMemoryCacheExpires(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	c.Set("k", 1, 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)
}
