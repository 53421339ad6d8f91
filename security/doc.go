// Package security holds the token codec and the security plumbing around
// it.
//
// The codec generates authorization codes, access tokens and refresh tokens
// from 32 bytes of CSPRNG output, hashes them with SHA-256 for storage, and
// implements PKCE S256 (RFC 7636). Every comparison of secret material goes
// through crypto/subtle; client secrets are hashed with bcrypt.
//
// Alongside the codec live the audit logger, which writes security events
// with hashed user identifiers, and a per-key rate limiter used to bound how
// often a single user and client pair can produce those events.
package security
