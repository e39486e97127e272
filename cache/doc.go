// Package cache is the namespaced shared cache for the coordination layer.
//
// # Keys
//
// Keys are composed deterministically as app:kind:id[:suffix] by [Cache.Key].
// Key construction is pure — no I/O — so handlers can build keys in hot
// paths without touching the store.
//
// # Failure policy
//
// No method returns a store error. A read against a dead store is a miss,
// a write returns false, a delete returns false. The hosting application
// keeps serving (uncached, slower) through a store outage. This policy is
// applied uniformly through [store.Guard], not per-method try/recover.
//
// # Generational invalidation
//
// Deleting every key in a namespace is O(keys). Instead each namespace has
// an integer version counter: callers compose keys through
// [Cache.VersionedKey] as base:v<N>, and [Cache.BumpVersion] increments N,
// instantly orphaning every entry written under the old version. Orphans
// are never read again and fall out via their TTLs. A corrupted counter
// (non-integer value) is detected, logged, and reset to 1 — callers always
// get a usable version.
//
// # Serialization
//
// Values are msgpack-encoded unless already a []byte. Encode failures are
// absorbed the same way store failures are: the Set reports false and the
// application moves on.
package cache
