/*
Package store provides the persistent backends the cache manager drives
with the optimizer's decisions.

Two value stores implement types.Store:

  - RedisStore keeps cached values in Redis with native TTL expiry,
    wrapping each value in a msgpack envelope that preserves its data
    type classification.
  - S3Store keeps cached values as S3 objects under a key prefix, for
    deployments that cache large immutable blobs.

FileMetadataStore implements types.MetadataStore: a msgpack-encoded
index of per-item access metadata persisted to a single file with an
atomic write-and-rename, so SLRU segment state and learned TTLs survive
process restarts.

The optimizer core never imports this package; the cache manager in
internal/cache wires a Store and a MetadataStore together with the
decision engine.
*/
package store
