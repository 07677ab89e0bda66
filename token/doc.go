// Package token reads claims out of bearer tokens without verifying them.
//
// The auth backend is the only authority on whether a token is valid; this package
// exists so the client can log who a token belongs to and skip a network round-trip
// for tokens that have plainly expired. Opaque (non-JWT) tokens are reported with
// [ErrNotJWT] and callers fall back to asking the backend.
package token
