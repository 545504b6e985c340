// Package store provides SQLite-backed persistence for scheduler
// snapshots, backing the save and load maintenance requests.
//
// A snapshot is one row in snapshots plus its timers and watches, each
// keeping table order in an ord column. Callbacks are stored as JSON
// targets ({"fn":name}, {"src":text} or a list).
//
// # Ordering
//
//   - Snapshots are ordered by seq (save order), never by wall time
//   - IDs are UUIDv7, so they also sort by creation
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: timer and watch rows cascade with their snapshot
package store
