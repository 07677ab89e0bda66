// Package storage provides durable key-value backends for the persisted bearer token.
//
// Every backend implements [Storage]. Backends that can observe writes made by other
// execution contexts (other tabs, other processes sharing a Redis or a token file) also
// implement [Watcher], delivering a [Change] for each key written or removed elsewhere.
// A context never receives notifications for its own writes.
//
// # Architecture boundaries
//
// This package owns key naming and change notification. It does NOT interpret token
// values, talk to the auth backend, or decide when a session is valid.
//
// # What this package must NOT do
//
//   - Import sessionkit (no upward imports).
//   - Log or otherwise expose stored values.
package storage
