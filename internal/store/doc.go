// Package store provides the SQLite-backed session journal of versync.
//
// The journal is append-only. Every outbound command and inbound
// notification handled by the engine is written as one entry:
//   - Sessions: one row per journaled connection
//   - Entries: messages stamped with the engine's logical clock
//
// # Ordering
//
// All reads order by seq ASC, id ASC COLLATE BINARY. Wall-clock time is
// never recorded, so replaying a journal yields the same order every time.
//
// # Idempotency
//
// Entry ids are content-addressed (ir.EntryID over canonical JSON), so
// writing the same entry twice is a no-op. Two different messages at the
// same (session, seq) violate a UNIQUE constraint and fail.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Entries must reference a known session
package store
