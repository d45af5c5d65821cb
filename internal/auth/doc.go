// Package auth defines caller identities and the resolver contract that
// turns a bearer or session token into one.
//
// Implementations live in sub-packages: jwt verifies signed tokens
// locally, session exchanges opaque session tokens with the identity
// backend, and provider selects one of them from configuration.
package auth
