// Package security holds the protective layers of the extension OAuth server:
// client secret hashing, per-IP rate limiting, request IDs, response headers,
// CORS, at-rest encryption of stored authorization codes and audit logging.
//
// # Client secrets
//
// Client secrets are never kept in memory in clear. HashClientSecret derives a
// bcrypt hash from the SHA-256 digest of the secret so that secrets longer than
// bcrypt's 72 byte input limit are still fully significant:
//
//	hash, err := security.HashClientSecret(secret, bcrypt.DefaultCost)
//	ok := security.CompareClientSecret(hash, presented)
//
// # Rate limiting
//
// RateLimiter is a token bucket per identifier (usually the client IP) with an
// LRU bound on the number of tracked identifiers:
//
//	limiter := security.NewRateLimiter(10, 20, logger)
//	defer limiter.Stop()
//
//	if !limiter.Allow(clientIP) {
//	    return http.StatusTooManyRequests
//	}
//
// GetStats reports the number of tracked identifiers and evictions so memory
// pressure can be watched from metrics.
package security
