package ai

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/procurewatch/tender-monitor/internal/domain"
)

func TestQuotaInMemory(t *testing.T) {
	ctx := context.Background()
	q := NewQuotaStore(nil)

	limit := domain.LimitsFor(domain.TierTrial).DailyAIChecks
	assert.Equal(t, limit, q.Remaining(ctx, 1, domain.TierTrial))
	assert.True(t, q.Allow(ctx, 1, domain.TierTrial))

	for i := 0; i < limit; i++ {
		q.Increment(ctx, 1)
	}
	assert.False(t, q.Allow(ctx, 1, domain.TierTrial))
	assert.Equal(t, 0, q.Remaining(ctx, 1, domain.TierTrial))

	// Another user is unaffected.
	assert.True(t, q.Allow(ctx, 2, domain.TierTrial))
}

func TestQuotaResetsNextDay(t *testing.T) {
	ctx := context.Background()
	q := NewQuotaStore(nil)
	day1 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return day1 }

	q.Increment(ctx, 1)
	assert.Equal(t, 1, q.Used(ctx, 1))

	q.now = func() time.Time { return day1.Add(24 * time.Hour) }
	assert.Equal(t, 0, q.Used(ctx, 1))
}

func TestQuotaRedisBacked(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewQuotaStore(rdb)

	q.Increment(ctx, 7)
	q.Increment(ctx, 7)
	assert.Equal(t, 2, q.Used(ctx, 7))

	// A second store sharing the same Redis sees the counter.
	other := NewQuotaStore(rdb)
	assert.Equal(t, 2, other.Used(ctx, 7))

	// Counters expire after the retention window.
	mr.FastForward(49 * time.Hour)
	assert.Equal(t, 0, q.Used(ctx, 7))
}
