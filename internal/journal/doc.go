// Package journal provides SQLite-backed durable storage for datablock
// change logs.
//
// Every diff a store applies (local writes as well as changes received from
// peers) can be appended as one entry. Replaying the entries of a store in
// order rebuilds its tree.
//
// # Ordering
//
//   - Entries are ordered by seq (INTEGER PRIMARY KEY AUTOINCREMENT), never
//     by recorded_at
//   - All queries use ORDER BY seq ASC
//
// # Idempotency
//
//   - Entry ids are UUIDv7, assigned on append when absent
//   - INSERT ... ON CONFLICT(id) DO NOTHING makes re-appending an entry a
//     no-op
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - A single connection: SQLite allows one writer
package journal
