package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Member is one scored entry in an ordered index.
type Member struct {
	Value string
	Score float64
}

// ZAdd inserts members into the sorted set at key.
func (s *Store) ZAdd(ctx context.Context, key string, members ...Member) error {
	if len(members) == 0 {
		return nil
	}
	zs := make([]redis.Z, len(members))
	for i, m := range members {
		zs[i] = redis.Z{Score: m.Score, Member: m.Value}
	}
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	start := time.Now()
	err := s.client.ZAdd(qctx, key, zs...).Err()
	return s.observe("zadd", start, err)
}

// ZRevRangeWithScores returns members of key ordered highest score first,
// ranks start..stop inclusive.
func (s *Store) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Member, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	began := time.Now()
	zs, err := s.client.ZRevRangeWithScores(qctx, key, start, stop).Result()
	if cerr := s.observe("zrevrange", began, err); cerr != nil {
		return nil, cerr
	}
	out := make([]Member, 0, len(zs))
	for _, z := range zs {
		v, _ := z.Member.(string)
		out = append(out, Member{Value: v, Score: z.Score})
	}
	return out, nil
}

// ZRangeByScoreWithScores returns members with scores in [min, max]
// ascending, where min and max use redis score syntax ("-inf", "(5", ...).
func (s *Store) ZRangeByScoreWithScores(ctx context.Context, key, min, max string) ([]Member, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	began := time.Now()
	zs, err := s.client.ZRangeByScoreWithScores(qctx, key, &redis.ZRangeBy{Min: min, Max: max}).Result()
	if cerr := s.observe("zrangebyscore", began, err); cerr != nil {
		return nil, cerr
	}
	out := make([]Member, 0, len(zs))
	for _, z := range zs {
		v, _ := z.Member.(string)
		out = append(out, Member{Value: v, Score: z.Score})
	}
	return out, nil
}

// ZRemRangeByScore removes members with scores in [min, max] and returns
// how many were removed.
func (s *Store) ZRemRangeByScore(ctx context.Context, key, min, max string) (int64, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	start := time.Now()
	n, err := s.client.ZRemRangeByScore(qctx, key, min, max).Result()
	if cerr := s.observe("zremrangebyscore", start, err); cerr != nil {
		return 0, cerr
	}
	return n, nil
}

// ZRemRangeByRank removes members at ranks start..stop (lowest score is
// rank 0). Trimming an index to its top N is ZRemRangeByRank(key, 0, -N-1).
func (s *Store) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) (int64, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	began := time.Now()
	n, err := s.client.ZRemRangeByRank(qctx, key, start, stop).Result()
	if cerr := s.observe("zremrangebyrank", began, err); cerr != nil {
		return 0, cerr
	}
	return n, nil
}

// ZRem removes specific members from the sorted set at key.
func (s *Store) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	start := time.Now()
	n, err := s.client.ZRem(qctx, key, args...).Result()
	if cerr := s.observe("zrem", start, err); cerr != nil {
		return 0, cerr
	}
	return n, nil
}

// ZCard returns the cardinality of the sorted set at key.
func (s *Store) ZCard(ctx context.Context, key string) (int64, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	start := time.Now()
	n, err := s.client.ZCard(qctx, key).Result()
	if cerr := s.observe("zcard", start, err); cerr != nil {
		return 0, cerr
	}
	return n, nil
}
