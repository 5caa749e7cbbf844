// Package cache persists fetched media across sessions.
//
// AssetCache stores assets as data URIs under versioned keys in a Store.
// Three stores are available: a SQLite file, a directory of zstd-compressed
// files and a quota-limited memory map. Storage is best effort; the first
// failed write turns the cache into a pass-through until the process exits.
//
// MemoryCache in LRU mode doubles as the transport cache of the fetch layer.
package cache
