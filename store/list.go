package store

import (
	"context"
	"time"
)

// List primitives. Earlier deployments of the activity feed stored
// list-typed indexes; the stream sweeper still has to cap and expire
// those when it finds them, so the adapter keeps the list surface.

// LPush prepends values to the list at key and returns the new length.
func (s *Store) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	start := time.Now()
	n, err := s.client.LPush(qctx, key, args...).Result()
	if cerr := s.observe("lpush", start, err); cerr != nil {
		return 0, cerr
	}
	return n, nil
}

// LRange returns list elements at indexes start..stop inclusive.
func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	began := time.Now()
	vals, err := s.client.LRange(qctx, key, start, stop).Result()
	if cerr := s.observe("lrange", began, err); cerr != nil {
		return nil, cerr
	}
	return vals, nil
}

// LRem removes up to count occurrences of value from the list at key.
func (s *Store) LRem(ctx context.Context, key string, count int64, value string) (int64, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	start := time.Now()
	n, err := s.client.LRem(qctx, key, count, value).Result()
	if cerr := s.observe("lrem", start, err); cerr != nil {
		return 0, cerr
	}
	return n, nil
}

// LTrim keeps only list elements at indexes start..stop inclusive.
func (s *Store) LTrim(ctx context.Context, key string, start, stop int64) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	began := time.Now()
	err := s.client.LTrim(qctx, key, start, stop).Err()
	return s.observe("ltrim", began, err)
}
