package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/choukidar/go-coord/store"
)

func (c *Cache) versionKey(namespace string) string {
	return c.cfg.prefix + ":version:" + namespace
}

// BumpVersion atomically increments the version counter for namespace and
// returns the new version. Entries composed with the previous version
// become unreachable immediately, which invalidates the whole namespace
// in O(1) without scanning.
//
// A counter holding a non-integer value is self-healing: it is deleted
// and restarted, so the call returns 1 instead of failing. If the store
// is unreachable the call returns 0; VersionedKey then composes a v0 key,
// which every replica agrees on for the duration of the outage.
func (c *Cache) BumpVersion(ctx context.Context, namespace string) int64 {
	key := c.versionKey(namespace)
	n, err := c.st.Incr(ctx, key)
	if err == nil {
		return n
	}
	if errors.Is(err, store.ErrInvalidState) {
		c.logger.Warn().Str("namespace", namespace).Msg("version counter corrupted, resetting to 1")
		if _, derr := c.st.Del(ctx, key); derr == nil {
			if n, ierr := c.st.Incr(ctx, key); ierr == nil {
				return n
			}
		}
	}
	c.logger.Warn().Err(err).Str("namespace", namespace).Msg("version bump degraded")
	return 0
}

// Version returns the current version of namespace, or 0 if the namespace
// has never been bumped or the store is unreachable.
func (c *Cache) Version(ctx context.Context, namespace string) int64 {
	return store.Guard(ctx, c.st, "cache.version", 0, func(ctx context.Context) (int64, error) {
		data, found, err := c.st.Get(ctx, c.versionKey(namespace))
		if err != nil || !found {
			return 0, err
		}
		v, perr := strconv.ParseInt(string(data), 10, 64)
		if perr != nil {
			// Corrupted counter; BumpVersion will heal it on next write.
			return 0, nil
		}
		return v, nil
	})
}

// VersionedKey composes base with the namespace's current version, so
// lookups follow the latest generation: base:v<N>.
func (c *Cache) VersionedKey(ctx context.Context, namespace, base string) string {
	return fmt.Sprintf("%s:v%d", base, c.Version(ctx, namespace))
}
