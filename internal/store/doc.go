// Package store provides SQLite-backed storage for work packages and their
// journals.
//
// The store is the system of record behind the in-memory caches: it fetches
// work packages (wpcache.Fetcher), persists edits (changeset.Saver) and
// lists journal entries (activity.Source).
//
// # Optimistic Locking
//
// Every work package row carries a lock_version. SaveWorkPackage only
// applies changes when the caller's lock version matches the stored one,
// bumps it by one and appends a journal row in the same transaction.
// A mismatch returns ErrConflict and changes nothing.
//
// # Deterministic Storage
//
//   - fields are stored as RFC 8785 canonical JSON
//   - digest is ir.Digest over id, parent, lock version and fields
//   - list queries use ORDER BY ... COLLATE BINARY
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
