// Package entity implements the optimistic entity-synchronization core.
//
// A Registry holds the client replica: bound Nodes keyed by their server id,
// and pending Nodes keyed by custom-type marker until the server confirms
// them. Nodes own TagGroups and Layers; TagGroups own Tags. Every entity
// embeds one EntityState that drives the shared lifecycle:
//
//	Reserved --create--> Creating --receive_create--> Created
//	Reserved --create (id known)--> Assumed --receive_create--> Created
//	Created/Assumed --destroy--> Destroying --receive_destroy--> Destroyed
//	Creating --destroy--> WantDestroy --receive_create--> Destroying
//
// Side effects (create, subscribe, destroy commands) are sent through the
// Session collaborator. Commands for entities whose owner has no server id
// yet are queued on the owner and flushed when the owner is confirmed.
//
// THREAD SAFETY:
// A Registry is not safe for concurrent use. All local mutations and all
// Receive calls must happen on one goroutine; engine.Engine provides that
// single-writer loop.
//
// ERRORS:
//   - StateError: illegal lifecycle transition, fatal to the call
//   - MarkerError: a second pending entity with the same marker in one scope
//   - ir.ValueError: tag or layer tuple of the wrong kind or arity
//
// Unknown ids on the receive path are logged at debug level and ignored.
package entity
