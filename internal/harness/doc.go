// Package harness runs scripted sync sessions against the engine.
//
// A scenario interleaves local mutations with server notifications and
// asserts on the commands the client sent and on the final replica.
// Each step is applied by exactly one engine tick, so the journal is the
// exact order in which the client saw and produced messages.
//
// # Scenario Format
//
//	name: tag_waits_for_group
//	description: "A tag created under a pending group is sent after the group is bound"
//	connect: {user: 100, avatar: 65}
//	steps:
//	  - local: create_node
//	    as: lamp
//	    custom_type: 40
//	  - local: create_taggroup
//	    target: lamp
//	    as: light
//	    custom_type: 2
//	  - receive: {op: node_create, node: 70, parent: 65, user: 100, custom_type: 40, token: tok-1}
//	assertions:
//	  - type: sent_contains
//	    message: {op: taggroup_create, node: 70, custom_type: 2}
//	  - type: entity_state
//	    target: light
//	    state: creating
//
// Steps are one of local (a mutation on a named handle), receive (a
// notification in message field form), fail_on or restore (transport
// failure injection for one op).
//
// # Assertion Types
//
//   - sent_contains: some sent command carries the given fields
//   - sent_order: first occurrences of ops appear in order
//   - sent_count: an op was sent exactly N times
//   - entity_state: a handle is in the given lifecycle state
//   - tag_value, item_value: a tag or layer item holds a tuple
//   - item_count: a layer holds N items
//   - bound_id: a handle is bound to a server id
//   - pending_count: N local nodes await confirmation
//
// # Deterministic Testing
//
// The harness uses:
//   - Sequential correlation tokens ("tok-1", "tok-2", ...)
//   - The engine's logical clock, starting at 1
//   - An in-memory SQLite journal (isolated per run)
//
// This ensures identical traces across runs for golden file comparison.
package harness
