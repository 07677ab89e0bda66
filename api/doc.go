// Package api is the HTTP client for the AIFICATION auth backend.
//
// It covers the four calls the client shell makes: profile lookup (GET /me), email and
// password login (POST /login), email signup (POST /signup) and identity-provider
// credential exchange (POST /auth/google). The backend itself is an external collaborator.
package api
