// Package store provides SQLite-backed durable storage for todosync.
//
// Two tables groups live in one database file:
//   - pending_actions: mutations queued while offline, replayed in FIFO order
//   - cache_partitions / cache_entries: named response caches, one row per
//     normalized request key
//
// # Ordering
//
// Pending actions are read ORDER BY enqueued_at ASC, seq ASC. The seq column is
// an AUTOINCREMENT rowid, so actions stamped with the same time still come back
// in insertion order.
//
// # Partition Lifetime
//
// Entries reference their partition with ON DELETE CASCADE. Deleting a
// partition removes its entries in the same statement, so a stale generation
// can never be half-deleted.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds (second process / tab)
//   - foreign_keys=ON: Required for partition cascade
package store
