// Package ir provides the shared vocabulary of versync.
//
// This package contains identifier types, the sealed tag/layer value union
// and the Message record exchanged with a Session. All other internal
// packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Every tuple value has exactly one kind (integer, real or text) and a
//     fixed arity; mixed or empty tuples are rejected at construction
//   - Messages are flat records; Fields/ParseMessage give them a canonical
//     JSON form for journals and golden traces
//   - Canonical JSON never carries floats; reals travel as shortest
//     round-trip decimal strings
//   - All JSON keys use snake_case
package ir
