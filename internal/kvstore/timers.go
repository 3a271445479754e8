package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// TimerIndex is the shared, time-ordered expiry index: a sorted set of broadcast ids
// scored by due time in unix milliseconds.
type TimerIndex struct {
	rdb redis.UniversalClient
	key string
}

// NewTimerIndex creates the index.
func NewTimerIndex(rdb redis.UniversalClient) *TimerIndex {
	return &TimerIndex{rdb: rdb, key: timerIndexKey}
}

// Add sets (or moves) the due time of a broadcast.
func (t *TimerIndex) Add(ctx context.Context, broadcastID string, due time.Time) error {
	err := t.rdb.ZAdd(ctx, t.key, redis.Z{Score: float64(due.UnixMilli()), Member: broadcastID}).Err()
	if err != nil {
		return fmt.Errorf("timer add %s: %w", broadcastID, err)
	}
	return nil
}

// AddIfAbsent indexes the broadcast only if it has no entry yet.
func (t *TimerIndex) AddIfAbsent(ctx context.Context, broadcastID string, due time.Time) (bool, error) {
	n, err := t.rdb.ZAddNX(ctx, t.key, redis.Z{Score: float64(due.UnixMilli()), Member: broadcastID}).Result()
	if err != nil {
		return false, fmt.Errorf("timer add-nx %s: %w", broadcastID, err)
	}
	return n == 1, nil
}

// Remove deletes the entry; it reports whether one existed.
func (t *TimerIndex) Remove(ctx context.Context, broadcastID string) (bool, error) {
	n, err := t.rdb.ZRem(ctx, t.key, broadcastID).Result()
	if err != nil {
		return false, fmt.Errorf("timer remove %s: %w", broadcastID, err)
	}
	return n == 1, nil
}

// Due lists up to limit broadcast ids whose due time is at or before now, earliest first.
func (t *TimerIndex) Due(ctx context.Context, now time.Time, limit int) ([]string, error) {
	ids, err := t.rdb.ZRangeByScore(ctx, t.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("timer due: %w", err)
	}
	return ids, nil
}

// DueAt returns the scheduled time of a broadcast, if indexed.
func (t *TimerIndex) DueAt(ctx context.Context, broadcastID string) (time.Time, bool, error) {
	score, err := t.rdb.ZScore(ctx, t.key, broadcastID).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("timer score %s: %w", broadcastID, err)
	}
	return time.UnixMilli(int64(score)).UTC(), true, nil
}

// Len returns the number of pending entries.
func (t *TimerIndex) Len(ctx context.Context) (int64, error) {
	return t.rdb.ZCard(ctx, t.key).Result()
}
