// Package model defines the records shared by the caching and sync layers.
//
// Two record kinds are persisted:
//   - CachedResponse: a stored HTTP response inside a named cache partition
//   - PendingAction: a mutation that failed while offline and awaits replay
//
// Cache keys are derived from the request method and a normalized URL so that
// equivalent requests (host case, default ports, query ordering) share one entry.
package model
