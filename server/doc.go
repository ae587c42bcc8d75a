// Package server implements the authorization server logic behind the HTTP
// handlers: client authentication, authorization code issuance and
// redemption, PKCE, and access token grants.
//
// The Server type coordinates three injected dependencies:
//   - a storage.ClientRegistry holding the statically configured clients
//   - a storage.CodeStore holding issued authorization codes until redeemed
//   - a TokenIssuer signing and verifying bearer tokens
//
// Supported grants are authorization_code (with optional PKCE, S256 or plain)
// and client_credentials. Refresh tokens are handed out for offline access
// but are opaque and never redeemable.
//
// Protocol failures are returned as *Error values carrying the OAuth error
// code; the HTTP layer maps them to status codes.
//
// Example usage:
//
//	registry, _ := memory.NewClientRegistry(client)
//	codes := memory.New()
//	issuer, _ := token.NewIssuer(secret, token.DefaultIssuer)
//
//	srv, err := server.New(registry, codes, issuer, logger, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
package server
