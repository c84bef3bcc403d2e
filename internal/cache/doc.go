// Package cache stores successful operation responses.
//
// Entries are opaque byte slices addressed by Key, which hashes the
// canonical JSON of the operation arguments so argument order never
// changes the key. Two backends implement Cache:
//
//   - memory: a bounded LRU with per-entry expiry. Expired entries are
//     dropped when read and by a periodic sweep.
//   - redis: one key per entry with a native TTL, shared by every replica.
//
// A cache never returns an entry past its expiry.
package cache
