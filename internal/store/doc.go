// Package store provides the SQLite-backed relational store for kinspect.
//
// The store keeps one row per source file, function, session, trial,
// stacktrace and inspect record:
//   - file: unique by (path, source, commit_hash), created lazily
//   - function: unique by (file_id, name); the first-seen range is kept
//   - session: one row per transport connection
//   - trial: one invocation, unique by (session_id, trial_id)
//   - stacktrace: deduplicated by fingerprint
//   - inspect: append-only observations attached to a trial
//
// # Writes
//
// Every write operation exists on *Store (autocommit) and on *Tx, which
// Store.Batch hands out so a burst of lines commits as one transaction.
// A failed statement inside a batch is rolled back on its own; the batch
// stays usable.
//
// # Reads
//
// Read helpers collect rows first and then call the Visitor, so a visitor
// may issue further reads. Done fires exactly once per call.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes (file databases)
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - one open connection: writes are serialized and ":memory:" survives
package store
