// Package engine drives an entity replica from a single goroutine.
//
// ARCHITECTURE:
//
// Single-Writer Tick:
// The replica is not safe for concurrent use, so every mutation runs on
// the goroutine that calls Tick (or Run). Other goroutines submit work:
//   - Do / Submit: local mutations from the host application
//   - Deliver: notifications read from the transport
//
// One tick first applies all queued local mutations, then drains inbound
// notifications in receipt order. Nothing inside a tick blocks; waiting
// for the server is explicit pending state in the replica.
//
// Logical Clock:
// Every outbound command and inbound notification is stamped with a
// monotonic seq from Clock.Next(). Wall-clock time is never used for
// ordering, so a journaled session replays in the same order.
//
// Journal:
// With WithJournal, each stamped message is appended to the SQLite
// journal (internal/store). Outbound commands are journaled after the
// transport accepted them, so a rejected send leaves a seq gap instead
// of a journal entry.
package engine
