package ai

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/procurewatch/tender-monitor/internal/domain"
)

// QuotaStore tracks per-user daily AI check counters. Counters are keyed by
// calendar date, so they reset at midnight rather than on a sliding window.
// The Redis backend is shared across replicas; without Redis the counters are
// process-local and advisory only.
type QuotaStore struct {
	rdb *redis.Client

	mu       sync.Mutex
	counters map[int64]*dayCounter
	now      func() time.Time
}

type dayCounter struct {
	date  string
	count int
}

// NewQuotaStore builds a QuotaStore. rdb may be nil.
func NewQuotaStore(rdb *redis.Client) *QuotaStore {
	return &QuotaStore{
		rdb:      rdb,
		counters: make(map[int64]*dayCounter),
		now:      time.Now,
	}
}

func quotaRedisKey(userID int64, date string) string {
	return fmt.Sprintf("tender-monitor:ai_quota:%d:%s", userID, date)
}

// Used returns the number of AI checks the user consumed today.
func (q *QuotaStore) Used(ctx context.Context, userID int64) int {
	date := q.now().Format("2006-01-02")
	if q.rdb != nil {
		n, err := q.rdb.Get(ctx, quotaRedisKey(userID, date)).Int()
		if err == nil {
			return n
		}
		if err != redis.Nil {
			log.Printf("[AIQuota] redis get failed, using local counter: %v", err)
		} else {
			return 0
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	c, ok := q.counters[userID]
	if !ok || c.date != date {
		return 0
	}
	return c.count
}

// Remaining returns how many AI checks the user has left today.
func (q *QuotaStore) Remaining(ctx context.Context, userID int64, tier domain.Tier) int {
	limit := domain.LimitsFor(tier).DailyAIChecks
	remaining := limit - q.Used(ctx, userID)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Allow reports whether the user still has quota for one more check.
func (q *QuotaStore) Allow(ctx context.Context, userID int64, tier domain.Tier) bool {
	return q.Used(ctx, userID) < domain.LimitsFor(tier).DailyAIChecks
}

// Increment records one consumed check.
func (q *QuotaStore) Increment(ctx context.Context, userID int64) {
	date := q.now().Format("2006-01-02")
	if q.rdb != nil {
		key := quotaRedisKey(userID, date)
		n, err := q.rdb.Incr(ctx, key).Result()
		if err == nil {
			if n == 1 {
				// The key outlives the day it counts so late readers still see it.
				q.rdb.Expire(ctx, key, 48*time.Hour)
			}
			return
		}
		log.Printf("[AIQuota] redis incr failed, using local counter: %v", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	c, ok := q.counters[userID]
	if !ok || c.date != date {
		c = &dayCounter{date: date}
		q.counters[userID] = c
	}
	c.count++
}
