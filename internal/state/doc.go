// Package state owns the reactive store of named, serializable state slices.
//
// Ownership boundary:
// - slice lifecycle (initialize, replace, teardown with the store)
//
// - mutation with synchronous subscriber dispatch
//
// - deferred replay, waits, timed waits and coalesced streams
//
// - plain-value snapshots (Serialize / Deserialize); durable storage is a
//   collaborator
//
// Mutation and dispatch are serialized by one store mutex. Subscriber
// callbacks and wait predicates run while it is held, so they must not call
// Mutate, Update or Deserialize on the same store; post follow-up work with
// Store.Post instead.
package state
