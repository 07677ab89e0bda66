// Package signin implements the account flows of the client shell: email/password login,
// email signup and identity-provider credential exchange. Every flow that yields a token
// hands it to the session store, which persists it and hydrates.
package signin
