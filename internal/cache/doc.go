// Package cache implements the disk-backed fetch-through cache sitting in
// front of every outbound media, artwork and feed request. Fetch guarantees
// at most one in-flight network fetch per remote URL regardless of concurrent
// callers, streams response bodies straight to disk, and records content-type
// and max-age metadata in the catalog store. Hits are served by handing the
// local file path back to the HTTP layer, which delegates range/conditional
// semantics to the file server. Purge, Clean and Close cover explicit
// deletion, TTL sweeps and shutdown cleanup of partial artifacts.
package cache
