// Package store provides SQLite-backed durable client state for Mosaic.
//
// The store holds three things a device must not lose across restarts:
//   - Submissions: the local queue of check-ins not yet confirmed remotely
//   - Cache entries: timestamped roster and plan-list reads (TTL checked by readers)
//   - Settings: small key/value state such as the active plan and session token
//
// # Critical Patterns
//
// Insertion Order
//   - Submissions carry seq INTEGER PRIMARY KEY AUTOINCREMENT
//   - All queue reads use ORDER BY seq ASC, never created_at
//
// Idempotent Enqueue
//   - UNIQUE(id) with ON CONFLICT(id) DO NOTHING
//   - Enqueuing the same submission id twice leaves one row
//
// Fresh-Read Removal
//   - RemoveConfirmed deletes by id against the live table
//   - Rows enqueued after a caller captured its snapshot are never touched
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - Single open connection: one writer, no SQLITE_BUSY between our own calls
//
// Queue reads page through the table and close each result set before
// yielding, so a caller may write to the store while ranging over Pending.
package store
