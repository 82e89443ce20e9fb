package keys

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Window caps events per source within a sliding time window. Allow records
// the event when it is admitted.
type Window interface {
	Allow(ctx context.Context, source string) (bool, error)
}

// MemoryWindow is process-local and forgets everything on restart. Sources
// idle for a full period are swept so the map stays bounded by recent
// traffic.
type MemoryWindow struct {
	mu        sync.Mutex
	max       int
	period    time.Duration
	now       func() time.Time
	hits      map[string][]time.Time
	lastSweep time.Time
}

func NewMemoryWindow(max int, period time.Duration, now func() time.Time) *MemoryWindow {
	if now == nil {
		now = time.Now
	}
	return &MemoryWindow{max: max, period: period, now: now, hits: make(map[string][]time.Time), lastSweep: now()}
}

func (w *MemoryWindow) Allow(_ context.Context, source string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if now.Sub(w.lastSweep) >= w.period {
		w.sweep(now)
	}

	kept := w.recent(w.hits[source], now)
	if len(kept) >= w.max {
		w.hits[source] = kept
		return false, nil
	}
	w.hits[source] = append(kept, now)
	return true, nil
}

func (w *MemoryWindow) recent(hits []time.Time, now time.Time) []time.Time {
	kept := hits[:0]
	for _, t := range hits {
		if now.Sub(t) < w.period {
			kept = append(kept, t)
		}
	}
	return kept
}

// sweep drops every source with no hit inside the window.
func (w *MemoryWindow) sweep(now time.Time) {
	for source, hits := range w.hits {
		if kept := w.recent(hits, now); len(kept) == 0 {
			delete(w.hits, source)
		} else {
			w.hits[source] = kept
		}
	}
	w.lastSweep = now
}

// RedisWindow shares the window between processes using one sorted set per
// source, scored by unix milliseconds.
type RedisWindow struct {
	rdb    redis.UniversalClient
	max    int
	period time.Duration
	now    func() time.Time
	prefix string
}

func NewRedisWindow(rdb redis.UniversalClient, max int, period time.Duration, now func() time.Time) *RedisWindow {
	if now == nil {
		now = time.Now
	}
	return &RedisWindow{rdb: rdb, max: max, period: period, now: now, prefix: "brainapi:register:"}
}

func (w *RedisWindow) Allow(ctx context.Context, source string) (bool, error) {
	key := w.prefix + source
	now := w.now()
	cutoff := now.Add(-w.period).UnixMilli()

	var card *redis.IntCmd
	_, err := w.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
		card = pipe.ZCard(ctx, key)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("read registration window: %w", err)
	}
	if card.Val() >= int64(w.max) {
		return false, nil
	}

	_, err = w.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: uuid.NewString()})
		pipe.PExpire(ctx, key, w.period)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("record registration: %w", err)
	}
	return true, nil
}
