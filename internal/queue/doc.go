// Package queue implements the durable pending-action queue.
//
// Mutations that fail in transport while offline are enqueued here and
// replayed, oldest first, when a background sync signal arrives.
//
// # Replay Contract
//
//   - Sequential: actions replay one at a time in FIFO order
//   - Independent: a failed action stays queued and replay moves on
//   - Single pass: concurrent ReplayAll callers share one in-flight pass, so
//     a queued mutation is never sent twice by overlapping triggers
//   - Unbounded retry: an action is retried on every pass until it succeeds
//     or is removed explicitly
//
// Storage is abstracted behind KVStore (GetAll, Put, Delete). internal/store
// provides the SQLite implementation; MemoryStore is used in tests.
package queue
