// Package token issues and verifies the HS256-signed JWT access tokens of the
// extension OAuth server. Tokens are stateless: nothing is persisted and they
// cannot be revoked before they expire.
package token
