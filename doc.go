// Package sessionkit keeps the client-side authenticated-user view of the AIFICATION
// shell consistent with the bearer token held in durable storage.
//
// A [SessionStore] belongs to one execution context (one browser tab, one CLI process)
// and is bound to one storage context. Several execution contexts may share a storage
// backend; a sign-in or sign-out in one of them is picked up by the others through
// [SessionStore.SubscribeToExternalChanges].
//
// # Architecture boundaries
//
// sessionkit is the public surface. It exposes [SessionStore], [Builder], [Config] and
// value types ([Snapshot], [User], [MetricsSnapshot]). Storage backends live in storage/,
// the backend HTTP contract in api/, identity-provider readiness in identity/, and the
// login/signup flows in signin/.
//
// # What this package must NOT do
//
//   - Surface hydration failures. A rejected or unreachable token collapses to the
//     signed-out view.
//   - Log bearer tokens.
//   - Verify token signatures. The backend is the authority; token/ only reads claims.
package sessionkit
