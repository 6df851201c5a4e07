// Package cache manages the versioned response partitions used by the
// interception layer.
//
// Two partitions are active at a time, both named after the deploy version:
//
//	<prefix>-static-<version>   shell assets, pre-cached at install
//	<prefix>-dynamic-<version>  API GET responses, most recent wins
//
// Activate deletes every other partition before returning, so a response from
// a previous deploy is never served once a new version is active.
//
// Storage is abstract; internal/store provides the SQLite implementation and
// MemoryStorage serves tests and ephemeral runs.
package cache
